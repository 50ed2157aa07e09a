package holetest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pkuhole/models"

	"github.com/go-chi/chi/v5"
)

// Messages the board answers with. They follow the live service's wording.
const (
	MsgBadToken        = "token无效"
	MsgAlreadyFollowed = "已经关注了该树洞"
	MsgNoSuchTopic     = "树洞不存在"
	MsgBadLogin        = "用户名或密码错误"
	MsgEmptyText       = "内容不能为空"
	MsgUnknownAction   = "unknown action"
)

// wireTopic and wireComment encode numbers as strings, as the service does.
type wireTopic struct {
	PID       string `json:"pid"`
	Text      string `json:"text"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Reply     string `json:"reply"`
	LikeNum   string `json:"likenum"`
	URL       string `json:"url"`
}

type wireComment struct {
	CID       string `json:"cid"`
	PID       string `json:"pid"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func toWireTopics(topics []models.Topic) []wireTopic {
	out := make([]wireTopic, len(topics))
	for i, t := range topics {
		out[i] = toWireTopic(t)
	}
	return out
}

func toWireTopic(t models.Topic) wireTopic {
	return wireTopic{
		PID:       strconv.FormatInt(t.PID, 10),
		Text:      t.Text,
		Type:      t.Type.String(),
		Timestamp: strconv.FormatInt(t.Timestamp, 10),
		Reply:     strconv.Itoa(t.Reply),
		LikeNum:   strconv.Itoa(t.LikeNum),
		URL:       t.URL,
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, payload map[string]interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(response); err != nil {
		s.logger.Error("Failed to write JSON response", "error", err)
	}
}

func (s *Server) ok(w http.ResponseWriter, data interface{}) {
	payload := map[string]interface{}{"code": 0}
	if data != nil {
		payload["data"] = data
	}
	s.respondJSON(w, payload)
}

func (s *Server) fail(w http.ResponseWriter, msg string) {
	s.respondJSON(w, map[string]interface{}{"code": 1, "msg": msg})
}

// splitImageBody separates the form fields of an image post from the raw
// bytes after the "&data=" marker.
func splitImageBody(body []byte) (url.Values, []byte, error) {
	var image []byte
	if i := bytes.Index(body, []byte("&data=")); i >= 0 {
		image = body[i+len("&data="):]
		body = body[:i]
	}
	form, err := url.ParseQuery(string(body))
	return form, image, err
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if reply, ok := s.cannedReply(action); ok {
		s.writeReply(w, reply)
		return
	}

	var form url.Values
	var image []byte
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "could not read body", http.StatusBadRequest)
			return
		}
		if form, image, err = splitImageBody(body); err != nil {
			http.Error(w, "bad form body", http.StatusBadRequest)
			return
		}
	}

	query := r.URL.Query()
	pid, _ := strconv.ParseInt(firstOf(query.Get("pid"), form.Get("pid")), 10, 64)

	switch action {
	case "getlist":
		p, _ := strconv.Atoi(query.Get("p"))
		topics := s.Board.page(p)
		if len(topics) == 0 {
			// The service omits data past the last page.
			s.ok(w, nil)
			return
		}
		s.ok(w, toWireTopics(topics))
	case "getone":
		t, ok := s.Board.Topic(pid)
		if !ok {
			s.respondJSON(w, map[string]interface{}{"code": 0, "data": nil})
			return
		}
		s.ok(w, toWireTopic(t))
	case "getcomment":
		comments := s.Board.commentsFor(pid)
		out := make([]wireComment, len(comments))
		for i, c := range comments {
			out[i] = wireComment{
				CID:       strconv.FormatInt(c.CID, 10),
				PID:       strconv.FormatInt(c.PID, 10),
				Name:      c.Name,
				Text:      c.Text,
				Timestamp: strconv.FormatInt(c.Timestamp, 10),
			}
		}
		s.ok(w, out)
	case "search":
		limit, _ := strconv.Atoi(form.Get("pagesize"))
		s.ok(w, toWireTopics(s.Board.search(form.Get("keywords"), limit)))
	default:
		s.handleAuthenticated(w, action, pid, form, image)
	}
}

func (s *Server) handleAuthenticated(w http.ResponseWriter, action string, pid int64, form url.Values, image []byte) {
	uid, ok := s.Board.uidFor(form.Get("token"))
	if !ok {
		switch action {
		case "getattention", "dopost", "docomment", "attention", "report":
			s.fail(w, MsgBadToken)
		default:
			s.fail(w, MsgUnknownAction)
		}
		return
	}

	switch action {
	case "getattention":
		s.ok(w, toWireTopics(s.Board.followed(uid)))
	case "dopost":
		text := form.Get("text")
		typ := models.ParseTopicType(form.Get("type"))
		if typ == models.TypeText && strings.TrimSpace(text) == "" {
			s.fail(w, MsgEmptyText)
			return
		}
		if typ != models.TypeImage {
			image = nil
		} else if decoded, err := base64.StdEncoding.DecodeString(string(image)); err == nil {
			image = decoded
		}
		s.ok(w, s.Board.post(text, typ, image))
	case "docomment":
		cid, ok := s.Board.comment(pid, form.Get("text"))
		if !ok {
			s.fail(w, MsgNoSuchTopic)
			return
		}
		s.ok(w, cid)
	case "attention":
		if _, ok := s.Board.Topic(pid); !ok {
			s.fail(w, MsgNoSuchTopic)
			return
		}
		if !s.Board.setFollow(uid, pid, form.Get("switch") == "1") {
			s.fail(w, MsgAlreadyFollowed)
			return
		}
		s.ok(w, nil)
	case "report":
		if !s.Board.report(uid, pid, form.Get("reason")) {
			s.fail(w, MsgNoSuchTopic)
			return
		}
		s.ok(w, nil)
	default:
		s.fail(w, MsgUnknownAction)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if reply, ok := s.cannedReply(LoginAction); ok {
		s.writeReply(w, reply)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form body", http.StatusBadRequest)
		return
	}
	uid := r.PostForm.Get("uid")
	token, ok := s.Board.login(uid, r.PostForm.Get("password"))
	if !ok {
		s.fail(w, MsgBadLogin)
		return
	}
	s.respondJSON(w, map[string]interface{}{"code": 0, "uid": uid, "token": token})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	data, ok := s.Board.Image(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write image", "name", name, "error", err)
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
