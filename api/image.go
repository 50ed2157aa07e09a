package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"pkuhole/config"
	"pkuhole/models"
)

// ImageURL returns the absolute address of a topic's image, or "" when the
// topic has none.
func (c *Client) ImageURL(topic models.Topic) string {
	if !topic.HasImage() {
		return ""
	}
	return c.url(imagePath(topic.URL), nil)
}

func imagePath(ref string) string {
	u := url.URL{Path: config.PicPath + strings.TrimPrefix(ref, "/")}
	return u.EscapedPath()
}

// FetchImage downloads the image of a topic. The image path returns raw
// bytes, not an envelope.
func (c *Client) FetchImage(ctx context.Context, topic models.Topic) ([]byte, error) {
	if !topic.HasImage() {
		return nil, ErrNoImage
	}
	return c.roundTrip(ctx, request{
		action: actionFetchImage,
		method: http.MethodGet,
		path:   imagePath(topic.URL),
	})
}
