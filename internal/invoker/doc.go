// Package invoker forwards normalized messages to a tenant's agent endpoint
// over HTTP.
//
// Each tenant gets one Invoker. Its endpoint URL and timeout live behind an
// atomic pointer so SetURL and SetTimeout take effect on the next call
// without disturbing calls already in flight.
//
// Invoke never returns an error: transport failures, timeouts and non-2xx
// replies become an unsuccessful AgentResponse whose text starts with
// "Error: ". InvokeWithRetry retries those failures with exponential backoff
// (100ms, 200ms, 400ms, ...) and reports the attempt count when it gives up.
//
// The agent may reply with {"response": "..."}, {"text": "..."} or any other
// JSON or plain text, which is passed through verbatim.
package invoker
