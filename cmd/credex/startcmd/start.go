package startcmd

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	cmdutils "github.com/trustbloc/edge-core/pkg/utils/cmd"

	"github.com/layer-3/credex/adapters/authclient"
	"github.com/layer-3/credex/adapters/events"
	"github.com/layer-3/credex/adapters/store"
	"github.com/layer-3/credex/adapters/tokenizer"
	"github.com/layer-3/credex/adapters/widget"
	"github.com/layer-3/credex/config"
	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/layer-3/credex/service"
	httptransport "github.com/layer-3/credex/transport/http"
)

var logger = logrus.WithField("component", "startcmd")

const (
	configFileFlagName  = "config-file"
	configFileFlagUsage = "Path to the credex YAML configuration file." +
		" Alternatively, this can be set with the following environment variable: " + configFileEnvKey
	configFileEnvKey = "CREDEX_CONFIG_FILE"

	hostURLFlagName      = "host-url"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "URL to run the credex instance on. Format: HostName:Port." +
		" Overrides server.listen_addr." +
		" Alternatively, this can be set with the following environment variable: " + hostURLEnvKey
	hostURLEnvKey = "CREDEX_HOST_URL"

	storeDriverFlagName  = "store-driver"
	storeDriverFlagUsage = "Ledger store driver. Possible values [memory] [redis] [sqlite]." +
		" Alternatively, this can be set with the following environment variable: " + storeDriverEnvKey
	storeDriverEnvKey = "CREDEX_STORE_DRIVER"

	redisURLFlagName  = "redis-url"
	redisURLFlagUsage = "Redis URL used by the redis store driver and the event publisher." +
		" Alternatively, this can be set with the following environment variable: " + redisURLEnvKey
	redisURLEnvKey = "CREDEX_REDIS_URL"

	sqlitePathFlagName  = "sqlite-path"
	sqlitePathFlagUsage = "Database file used by the sqlite store driver." +
		" Alternatively, this can be set with the following environment variable: " + sqlitePathEnvKey
	sqlitePathEnvKey = "CREDEX_SQLITE_PATH"

	storeTimeoutFlagName  = "store-timeout"
	storeTimeoutFlagUsage = "Total time in seconds to wait until the store is available before giving up." +
		" Default: 30 seconds." +
		" Alternatively, this can be set with the following environment variable: " + storeTimeoutEnvKey
	storeTimeoutEnvKey  = "CREDEX_STORE_TIMEOUT"
	storeTimeoutDefault = 30

	devAuthFlagName  = "dev-auth"
	devAuthFlagUsage = "Serve a local login endpoint minting tokens for the configured issuer and verifier." +
		" Possible values [true] [false]." +
		" Alternatively, this can be set with the following environment variable: " + devAuthEnvKey
	devAuthEnvKey = "CREDEX_DEV_AUTH"

	logLevelFlagName  = "log-level"
	logLevelFlagUsage = "Sets the logging level." +
		" Possible values are [debug, info, warning, error] (default comes from the config file)." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey
	logLevelEnvKey = "CREDEX_LOGLEVEL"
)

const sleep = time.Second

type server interface {
	ListenAndServe(host string, router http.Handler) error
}

// HTTPServer represents an actual HTTP server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler) error {
	return http.ListenAndServe(host, router)
}

type startParameters struct {
	cfg          config.Config
	storeTimeout uint64
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd(srv server) *cobra.Command {
	startCmd := createStartCmd(srv)

	createFlags(startCmd)

	return startCmd
}

func createStartCmd(srv server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start credex",
		Long:  "Start the credential request and exchange service",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getStartParameters(cmd)
			if err != nil {
				return err
			}

			return startService(parameters, srv)
		},
	}
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(configFileFlagName, "c", "", configFileFlagUsage)
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(storeDriverFlagName, "", "", storeDriverFlagUsage)
	startCmd.Flags().StringP(redisURLFlagName, "", "", redisURLFlagUsage)
	startCmd.Flags().StringP(sqlitePathFlagName, "", "", sqlitePathFlagUsage)
	startCmd.Flags().StringP(storeTimeoutFlagName, "", "", storeTimeoutFlagUsage)
	startCmd.Flags().StringP(devAuthFlagName, "", "", devAuthFlagUsage)
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)
}

func getStartParameters(cmd *cobra.Command) (*startParameters, error) {
	configFile, err := cmdutils.GetUserSetVarFromString(cmd, configFileFlagName, configFileEnvKey, false)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flagName string
		envKey   string
		target   *string
	}{
		{hostURLFlagName, hostURLEnvKey, &cfg.Server.ListenAddr},
		{storeDriverFlagName, storeDriverEnvKey, &cfg.Store.Driver},
		{redisURLFlagName, redisURLEnvKey, &cfg.Store.RedisURL},
		{sqlitePathFlagName, sqlitePathEnvKey, &cfg.Store.SQLitePath},
		{logLevelFlagName, logLevelEnvKey, &cfg.LogLevel},
	}
	for _, o := range overrides {
		value, err := cmdutils.GetUserSetVarFromString(cmd, o.flagName, o.envKey, true)
		if err != nil {
			return nil, err
		}
		if value != "" {
			*o.target = value
		}
	}

	devAuth, err := cmdutils.GetUserSetVarFromString(cmd, devAuthFlagName, devAuthEnvKey, true)
	if err != nil {
		return nil, err
	}
	if devAuth != "" {
		cfg.Server.DevAuth, err = strconv.ParseBool(devAuth)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", devAuthFlagName, err)
		}
	}

	timeout, err := cmdutils.GetUserSetVarFromString(cmd, storeTimeoutFlagName, storeTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}
	storeTimeout := uint64(storeTimeoutDefault)
	if timeout != "" {
		storeTimeout, err = strconv.ParseUint(timeout, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse store timeout %s: %w", timeout, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &startParameters{cfg: cfg, storeTimeout: storeTimeout}, nil
}

func startService(parameters *startParameters, srv server) error {
	cfg := parameters.cfg

	if err := setLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	ledgerStore, redisClient, err := initStore(cfg.Store, parameters.storeTimeout)
	if err != nil {
		return err
	}

	publisher, err := initPublisher(redisClient)
	if err != nil {
		return err
	}

	tokenTimeout, err := cfg.TokenTimeout()
	if err != nil {
		return err
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return err
	}

	var clientOpts []authclient.Option
	if strings.EqualFold(cfg.Identity.Environment, config.EnvSandbox) {
		clientOpts = append(clientOpts, authclient.WithHeader("X-Test", "true"))
	}
	tokens := authclient.NewClient(&http.Client{Timeout: tokenTimeout}, clientOpts...)

	registry := widget.NewHostedRegistry()
	widgets := service.NewWidgetController(registry, service.WidgetConfig{
		PartnerID:            cfg.Widget.PartnerID,
		IssuerDID:            cfg.Identity.IssuerDID,
		CredentialID:         cfg.Widget.CredentialID,
		VerifierDID:          cfg.Identity.VerifierDID,
		Endpoint:             cfg.Widget.URL,
		Environment:          strings.ToUpper(cfg.Identity.Environment),
		Theme:                cfg.Widget.Theme,
		Locale:               cfg.Widget.Locale,
		RedirectURLForIssuer: cfg.Widget.RedirectURL,
	})

	orchestrator := service.NewOrchestrator(
		service.NewLedger(ledgerStore),
		tokens,
		widgets,
		events.NewWatermillPublisher(publisher),
		service.OrchestratorConfig{
			APIBaseURL: cfg.Identity.APIBaseURL,
			Issuer:     service.Credentials{DID: cfg.Identity.IssuerDID, APIKey: cfg.Identity.IssuerAPIKey},
			Verifier:   service.Credentials{DID: cfg.Identity.VerifierDID, APIKey: cfg.Identity.VerifierAPIKey},
		},
	)

	routerCfg := httptransport.RouterConfig{
		Orchestrator: orchestrator,
		Registry:     registry,
		PollInterval: pollInterval,
	}
	if len(cfg.Programs) > 0 {
		routerCfg.Programs = cfg.ProgramFor
	}
	if cfg.Server.DevAuth {
		routerCfg.AuthService, err = newDevAuthService(cfg.Identity)
		if err != nil {
			return err
		}
		logger.Warnf("development login endpoint enabled under /auth/:role/login")
	}

	router := httptransport.SetupRouter(routerCfg)

	logger.Infof("starting credex on host %s with %s store", cfg.Server.ListenAddr, cfg.Store.Driver)

	return srv.ListenAndServe(cfg.Server.ListenAddr, constructCORSHandler(router, cfg.Server.CORSOrigins))
}

func setLogLevel(logLevel string) error {
	if logLevel == "" {
		return nil
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)

	return nil
}

func initStore(cfg config.StoreSection, timeout uint64) (ports.LedgerStore, *redis.Client, error) {
	switch cfg.Driver {
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)

		err = retry(func() error {
			return client.Ping(context.Background()).Err()
		}, timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		return store.NewRedisStore(client), client, nil
	case config.StoreSQLite:
		var sqliteStore *store.SQLiteStore
		err := retry(func() error {
			var err error
			sqliteStore, err = store.NewSQLiteStore(context.Background(), cfg.SQLitePath)
			return err
		}, timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}

		return sqliteStore, nil, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// initPublisher publishes to redis streams when redis is available so other
// processes can observe notifications, and in process otherwise.
func initPublisher(client *redis.Client) (message.Publisher, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if client == nil {
		return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	return publisher, nil
}

func newDevAuthService(identity config.IdentitySection) (*service.AuthService, error) {
	// a fresh key per process; tokens do not survive a restart
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	return service.NewAuthService(tokenizer.NewJWTTokenizer(privateKey), []core.Principal{
		{DID: identity.IssuerDID, Role: core.RoleIssuer, APIKey: identity.IssuerAPIKey},
		{DID: identity.VerifierDID, Role: core.RoleVerifier, APIKey: identity.VerifierAPIKey},
	}), nil
}

func constructCORSHandler(handler http.Handler, origins []string) http.Handler {
	return cors.New(
		cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(handler)
}

func retry(fn func() error, timeout uint64) error {
	numRetries := uint64(storeTimeoutDefault)

	if timeout != 0 {
		numRetries = timeout
	}

	return backoff.RetryNotify(
		fn,
		backoff.WithMaxRetries(backoff.NewConstantBackOff(sleep), numRetries),
		func(retryErr error, t time.Duration) {
			logger.Warnf("failed to connect to store, will sleep for %s before trying again: %s", t, retryErr)
		},
	)
}
