package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"pkuhole/config"
	"pkuhole/models"
	"pkuhole/utils"
)

// Actions understood by the API path.
const (
	ActionList       = "getlist"
	ActionGetOne     = "getone"
	ActionComments   = "getcomment"
	ActionSearch     = "search"
	ActionAttention  = "getattention"
	ActionPost       = "dopost"
	ActionComment    = "docomment"
	ActionSetFollow  = "attention"
	ActionReport     = "report"
	actionLogin      = "login"
	actionFetchImage = "image"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func actionQuery(action string) Params { return pairs("action", action) }

// --- Public endpoints ---

// ListTopics returns one page of the topic timeline. A page without data is
// an empty result.
func (c *Client) ListTopics(ctx context.Context, page int) ([]models.Topic, error) {
	env, err := c.exchange(ctx, get(ActionList, config.APIPath, pairs("action", ActionList, "p", strconv.Itoa(page))))
	if err != nil {
		return nil, err
	}
	return topicList(env)
}

// GetTopic fetches a single topic. found is false, with a nil error, when the
// server answers successfully without data, which is how it reports a
// deleted topic.
func (c *Client) GetTopic(ctx context.Context, pid int64) (topic models.Topic, found bool, err error) {
	env, err := c.exchange(ctx, get(ActionGetOne, config.APIPath, pairs("action", ActionGetOne, "pid", itoa(pid))))
	if err != nil {
		return models.Topic{}, false, err
	}
	topic, found, err = decodePayload[models.Topic](env)
	if err != nil || !found {
		return topic, found, err
	}
	if topic.PID <= 0 {
		return models.Topic{}, false, &MalformedResponseError{Reason: "topic without a valid pid"}
	}
	return topic, true, nil
}

// ListComments returns the comments of a topic, oldest first as the server orders them.
func (c *Client) ListComments(ctx context.Context, pid int64) ([]models.Comment, error) {
	env, err := c.exchange(ctx, get(ActionComments, config.APIPath, pairs("action", ActionComments, "pid", itoa(pid))))
	if err != nil {
		return nil, err
	}
	comments, _, err := decodePayload[[]models.Comment](env)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments, nil
}

// SearchTopics passes keywords to the server's search and returns at most
// pageSize topics in the server's ranking.
func (c *Client) SearchTopics(ctx context.Context, keywords string, pageSize int) ([]models.Topic, error) {
	form := pairs("keywords", keywords, "pagesize", strconv.Itoa(pageSize))
	env, err := c.exchange(ctx, post(ActionSearch, config.APIPath, actionQuery(ActionSearch), form))
	if err != nil {
		return nil, err
	}
	return topicList(env)
}

// Login exchanges credentials for a session token. The credentials travel as
// a plain form body; the service offers nothing better.
func (c *Client) Login(ctx context.Context, uid, password string) (models.User, error) {
	form := pairs("uid", uid, "password", password)
	env, err := c.exchange(ctx, post(actionLogin, config.LoginPath, pairs("platform", config.Platform), form))
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	if err := user.UnmarshalJSON(env.Raw); err != nil {
		return models.User{}, &MalformedResponseError{Reason: "unexpected login shape", Err: err}
	}
	if user.Token == "" {
		return models.User{}, &MalformedResponseError{Reason: "login response without token"}
	}
	return user, nil
}

// --- Authenticated endpoints ---

// ListFollowed returns the topics the session's user follows on the server.
func (c *Client) ListFollowed(ctx context.Context, token string) ([]models.Topic, error) {
	env, err := c.exchange(ctx, post(ActionAttention, config.APIPath, actionQuery(ActionAttention), pairs("token", token)))
	if err != nil {
		return nil, err
	}
	return topicList(env)
}

// PostText creates a text topic and returns its pid.
func (c *Client) PostText(ctx context.Context, token, text string) (int64, error) {
	form := pairs("token", token, "type", models.TypeText.String(), "text", text)
	env, err := c.exchange(ctx, post(ActionPost, config.APIPath, actionQuery(ActionPost), form))
	if err != nil {
		return 0, err
	}
	return decodeID(env)
}

// PostImage creates an image topic. image is written to the body verbatim
// after the form fields; see imageBody.
func (c *Client) PostImage(ctx context.Context, token, text string, image []byte) error {
	form := pairs("token", token, "type", models.TypeImage.String(), "text", text)
	r := request{
		action: ActionPost,
		method: http.MethodPost,
		path:   config.APIPath,
		query:  actionQuery(ActionPost),
		body:   imageBody(form, image),
	}
	_, err := c.exchange(ctx, r)
	return err
}

// PostComment replies to topic pid and returns the new comment id.
func (c *Client) PostComment(ctx context.Context, token string, pid int64, text string) (int64, error) {
	form := pairs("token", token, "pid", itoa(pid), "text", text)
	env, err := c.exchange(ctx, post(ActionComment, config.APIPath, actionQuery(ActionComment), form))
	if err != nil {
		return 0, err
	}
	return decodeID(env)
}

// SetFollow turns following of a topic on or off. A duplicate follow is
// rejected by the server; the error then matches ErrAlreadyFollowed.
func (c *Client) SetFollow(ctx context.Context, token string, pid int64, on bool) error {
	form := pairs("token", token, "pid", itoa(pid), "switch", utils.BtoS(on))
	_, err := c.exchange(ctx, post(ActionSetFollow, config.APIPath, actionQuery(ActionSetFollow), form))
	return err
}

// Report flags a topic for moderation. Unlike every other method, a
// rejection by the server is reported as false with a nil error; transport
// and envelope failures are still returned as errors.
func (c *Client) Report(ctx context.Context, token string, pid int64, reason string) (bool, error) {
	form := pairs("token", token, "pid", itoa(pid), "reason", reason)
	_, err := c.exchange(ctx, post(ActionReport, config.APIPath, actionQuery(ActionReport), form))
	var rejected *ServerRejectedError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &rejected):
		c.logger.Warn("Report rejected", "pid", pid, "code", rejected.Code, "msg", rejected.Message)
		return false, nil
	default:
		return false, err
	}
}

func topicList(env *envelope) ([]models.Topic, error) {
	topics, _, err := decodePayload[[]models.Topic](env)
	if err != nil {
		return nil, err
	}
	if topics == nil {
		topics = []models.Topic{}
	}
	return topics, nil
}
