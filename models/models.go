// pkuhole/models/models.go
package models

import (
	"encoding/json"
	"time"
)

// --- Core Data Models ---

// TopicType tags how a topic is meant to be rendered.
type TopicType int

const (
	TypeUnknown TopicType = iota
	TypeText
	TypeImage
	TypeAudio
)

var topicTypeNames = map[TopicType]string{
	TypeUnknown: "unknown",
	TypeText:    "text",
	TypeImage:   "image",
	TypeAudio:   "audio",
}

func (t TopicType) String() string {
	if s, ok := topicTypeNames[t]; ok {
		return s
	}
	return topicTypeNames[TypeUnknown]
}

func (t TopicType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText never fails: tags this client does not know decode to TypeUnknown.
func (t *TopicType) UnmarshalText(b []byte) error {
	*t = ParseTopicType(string(b))
	return nil
}

// ParseTopicType maps the server's raw "type" field to a TopicType.
func ParseTopicType(s string) TopicType {
	for k, v := range topicTypeNames {
		if v == s {
			return k
		}
	}
	return TypeUnknown
}

// Topic is a single anonymous post. LikeNum and Reply are the only fields
// that change after a topic has been fetched.
type Topic struct {
	PID       int64     `json:"pid"`
	Text      string    `json:"text"`
	Type      TopicType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Reply     int       `json:"reply"`
	LikeNum   int       `json:"likenum"`
	URL       string    `json:"url,omitempty"`
}

func (t *Topic) UnmarshalJSON(b []byte) error {
	var w struct {
		PID       flexInt   `json:"pid"`
		Text      string    `json:"text"`
		Type      TopicType `json:"type"`
		Timestamp flexInt   `json:"timestamp"`
		Reply     flexInt   `json:"reply"`
		LikeNum   flexInt   `json:"likenum"`
		URL       string    `json:"url"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = Topic{
		PID:       int64(w.PID),
		Text:      w.Text,
		Type:      w.Type,
		Timestamp: int64(w.Timestamp),
		Reply:     int(w.Reply),
		LikeNum:   int(w.LikeNum),
		URL:       w.URL,
	}
	return nil
}

// Time returns the creation time of the topic.
func (t Topic) Time() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// HasImage reports whether the topic carries an image reference.
func (t Topic) HasImage() bool {
	return t.Type == TypeImage && t.URL != ""
}

// Comment is a reply to a topic, always fetched scoped to its PID.
type Comment struct {
	CID       int64  `json:"cid"`
	PID       int64  `json:"pid"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Comment) UnmarshalJSON(b []byte) error {
	var w struct {
		CID       flexInt `json:"cid"`
		PID       flexInt `json:"pid"`
		Name      string  `json:"name"`
		Text      string  `json:"text"`
		Timestamp flexInt `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*c = Comment{
		CID:       int64(w.CID),
		PID:       int64(w.PID),
		Name:      w.Name,
		Text:      w.Text,
		Timestamp: int64(w.Timestamp),
	}
	return nil
}

func (c Comment) Time() time.Time {
	return time.Unix(c.Timestamp, 0)
}

// User is the result of a successful login. Token is opaque and must be
// passed back verbatim on authenticated calls.
type User struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

func (u *User) UnmarshalJSON(b []byte) error {
	var w struct {
		UID   flexString `json:"uid"`
		Token string     `json:"token"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*u = User{UID: string(w.UID), Token: w.Token}
	return nil
}

// --- Local Models ---

// FollowedTopic is a topic in the local attention store.
type FollowedTopic struct {
	Topic
	FollowedAt time.Time `json:"followed_at"`
}

// Session is the persisted login of the local user.
type Session struct {
	UID       string
	Token     string
	CreatedAt time.Time
}
