package ports

import "github.com/layer-3/credex/core"

// Tokenizer converts between token sessions and signed bearer tokens
type Tokenizer interface {
	SessionToToken(session *core.TokenSession) (string, error)
	TokenToSession(token string, role core.Role) (*core.TokenSession, error)
}
