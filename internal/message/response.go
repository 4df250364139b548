// ABOUTME: AgentResponse envelope returned to adapters from every gateway call
// ABOUTME: Extension keys are flattened into the JSON object beside the core fields

package message

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Extension keys set by the gateway and invoker.
const (
	ExtError    = "error"
	ExtAttempts = "attempts"
)

// Error kinds carried in the ExtError extension of failed responses.
const (
	ErrorInvalidTenant      = "invalid_tenant"
	ErrorUnsupportedChannel = "unsupported_channel"
	ErrorInvalidMessage     = "invalid_message"
	ErrorNoInvoker          = "no_invoker"
	ErrorAgent              = "agent_error"
	ErrorGateway            = "gateway_error"
)

// AgentResponse is the uniform result envelope.
type AgentResponse struct {
	Success   bool
	Response  string
	SessionID string
	Extra     Metadata
}

// Failure builds an unsuccessful response tagged with an error kind.
func Failure(kind, text, sessionID string) AgentResponse {
	return AgentResponse{
		Response:  text,
		SessionID: sessionID,
		Extra:     Metadata{ExtError: String(kind)},
	}
}

// ErrorKind returns the machine-readable failure kind, or "" on success.
func (r AgentResponse) ErrorKind() string {
	return r.Extra.Get(ExtError)
}

// With returns a copy of r with key set in the extension map.
func (r AgentResponse) With(key string, v Value) AgentResponse {
	r.Extra = r.Extra.Merged(Metadata{key: v})
	return r
}

// MarshalJSON flattens Extra into the object. Core fields take precedence.
func (r AgentResponse) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		obj[k] = v
	}
	obj["success"] = r.Success
	obj["response"] = r.Response
	obj["sessionId"] = r.SessionID
	return json.Marshal(obj)
}

// UnmarshalJSON reads the core fields and collects every other supported key into Extra.
func (r *AgentResponse) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid response JSON")
	}
	obj := gjson.ParseBytes(data)
	if !obj.IsObject() {
		return fmt.Errorf("response must be a JSON object")
	}

	out := AgentResponse{}
	obj.ForEach(func(key, val gjson.Result) bool {
		switch key.String() {
		case "success":
			out.Success = val.Bool()
		case "response":
			out.Response = val.String()
		case "sessionId":
			out.SessionID = val.String()
		default:
			v, err := valueFromResult(val)
			if err != nil {
				return true
			}
			if out.Extra == nil {
				out.Extra = Metadata{}
			}
			out.Extra[key.String()] = v
		}
		return true
	})
	*r = out
	return nil
}
