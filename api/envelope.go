package api

import (
	"bytes"
	"context"
	"encoding/json"

	"pkuhole/models"
)

// envelope is the {code, msg?, data?} wrapper of every response.
type envelope struct {
	Code int64
	Msg  string
	// Data is nil when the field is absent or null.
	Data json.RawMessage
	// Raw is the whole object, for endpoints that answer at the top level.
	Raw json.RawMessage
}

var jsonNull = []byte("null")

// decodeEnvelope parses a response body. A non-zero code is returned as a
// *ServerRejectedError together with the envelope.
func decodeEnvelope(body []byte) (*envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &MalformedResponseError{Reason: "body is not a JSON object", Err: err}
	}
	if fields == nil {
		return nil, &MalformedResponseError{Reason: "body is null"}
	}

	rawCode, ok := fields["code"]
	if !ok {
		return nil, &MalformedResponseError{Reason: "missing code"}
	}
	code, err := models.ParseInt(rawCode)
	if err != nil {
		return nil, &MalformedResponseError{Reason: "code is not an integer", Err: err}
	}

	env := &envelope{Code: code, Raw: body}
	if rawMsg, ok := fields["msg"]; ok {
		if err := json.Unmarshal(rawMsg, &env.Msg); err != nil {
			env.Msg = string(rawMsg)
		}
	}
	if data, ok := fields["data"]; ok && !bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		env.Data = data
	}

	if code != 0 {
		return env, &ServerRejectedError{Code: code, Message: env.Msg}
	}
	return env, nil
}

// decodePayload unmarshals the data field into T. ok is false when the
// envelope carried no data, which is not an error.
func decodePayload[T any](env *envelope) (v T, ok bool, err error) {
	if env.Data == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, false, &MalformedResponseError{Reason: "unexpected data shape", Err: err}
	}
	return v, true, nil
}

// decodeID reads the integer id a write endpoint returns in data.
func decodeID(env *envelope) (int64, error) {
	if env.Data == nil {
		return 0, &MalformedResponseError{Reason: "missing id in data"}
	}
	id, err := models.ParseInt(env.Data)
	if err != nil {
		return 0, &MalformedResponseError{Reason: "id is not an integer", Err: err}
	}
	return id, nil
}

// exchange runs the request and decodes the envelope.
func (c *Client) exchange(ctx context.Context, r request) (*envelope, error) {
	body, err := c.roundTrip(ctx, r)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		c.logger.Debug("Envelope rejected", "action", r.action, "error", err)
	}
	return env, err
}
