package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"pkuhole/config"
	"pkuhole/holetest"
	"pkuhole/models"
)

func seedTopics(srv *holetest.Server) {
	srv.Board.Seed(
		models.Topic{PID: 101, Text: "first topic", Type: models.TypeText, Timestamp: 1500000000},
		models.Topic{PID: 102, Text: "a picture", Type: models.TypeImage, Timestamp: 1500000100, URL: "102.jpeg"},
		models.Topic{PID: 103, Text: "looking for a study partner", Type: models.TypeText, Timestamp: 1500000200, Reply: 4, LikeNum: 9},
	)
}

func TestListTopics(t *testing.T) {
	c, srv := newTestClient(t)
	seedTopics(srv)

	topics, err := c.ListTopics(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("Expected 3 topics, got %d", len(topics))
	}
	want := models.Topic{PID: 103, Text: "looking for a study partner", Type: models.TypeText, Timestamp: 1500000200, Reply: 4, LikeNum: 9}
	if topics[0] != want {
		t.Errorf("Expected newest topic %+v, got %+v", want, topics[0])
	}
	if topics[1].Type != models.TypeImage || topics[1].URL != "102.jpeg" {
		t.Errorf("Expected image topic with url, got %+v", topics[1])
	}

	req, _ := srv.LastRequest()
	if req.Method != http.MethodGet || req.Path != config.APIPath {
		t.Errorf("Expected GET %s, got %s %s", config.APIPath, req.Method, req.Path)
	}
	if got := req.Query.Get("action"); got != ActionList {
		t.Errorf("Expected action %q, got %q", ActionList, got)
	}
	if got := req.Query.Get("p"); got != "1" {
		t.Errorf("Expected p=1, got %q", got)
	}
}

func TestListTopicsWithoutData(t *testing.T) {
	c, srv := newTestClient(t)

	t.Run("Past Last Page", func(t *testing.T) {
		seedTopics(srv)
		topics, err := c.ListTopics(context.Background(), 9)
		if err != nil {
			t.Fatalf("ListTopics failed: %v", err)
		}
		if topics == nil || len(topics) != 0 {
			t.Errorf("Expected an empty, non-nil list, got %#v", topics)
		}
	})

	t.Run("Canned Envelope", func(t *testing.T) {
		srv.HandleJSON(ActionList, `{"code":0}`)
		topics, err := c.ListTopics(context.Background(), 1)
		if err != nil {
			t.Fatalf("ListTopics failed: %v", err)
		}
		if topics == nil || len(topics) != 0 {
			t.Errorf("Expected an empty, non-nil list, got %#v", topics)
		}
	})

	t.Run("Null Data", func(t *testing.T) {
		srv.HandleJSON(ActionList, `{"code":0,"data":null}`)
		topics, err := c.ListTopics(context.Background(), 1)
		if err != nil {
			t.Fatalf("ListTopics failed: %v", err)
		}
		if len(topics) != 0 {
			t.Errorf("Expected no topics, got %d", len(topics))
		}
	})

	t.Run("Followed Without Data", func(t *testing.T) {
		srv.HandleJSON(ActionAttention, `{"code":0}`)
		topics, err := c.ListFollowed(context.Background(), "tok")
		if err != nil {
			t.Fatalf("ListFollowed failed: %v", err)
		}
		if topics == nil || len(topics) != 0 {
			t.Errorf("Expected an empty, non-nil list, got %#v", topics)
		}
	})
}

func TestGetTopic(t *testing.T) {
	c, srv := newTestClient(t)
	seedTopics(srv)

	topic, found, err := c.GetTopic(context.Background(), 102)
	if err != nil {
		t.Fatalf("GetTopic failed: %v", err)
	}
	if !found {
		t.Fatal("Expected topic 102 to be found")
	}
	if topic.PID != 102 || !topic.HasImage() {
		t.Errorf("Unexpected topic %+v", topic)
	}
	req, _ := srv.LastRequest()
	if req.Query.Get("pid") != "102" || req.Query.Get("action") != ActionGetOne {
		t.Errorf("Unexpected query %v", req.Query)
	}

	srv.Board.Delete(102)
	topic, found, err = c.GetTopic(context.Background(), 102)
	if err != nil {
		t.Fatalf("Expected no error for a deleted topic, got %v", err)
	}
	if found {
		t.Errorf("Expected deleted topic to be reported as not found, got %+v", topic)
	}
}

func TestGetTopicWithoutPID(t *testing.T) {
	c, srv := newTestClient(t)

	for _, body := range []string{`{"code":0,"data":{}}`, `{"code":0,"data":{"pid":0,"text":"x"}}`, `{"code":0,"data":{"pid":"-4"}}`} {
		srv.HandleJSON(ActionGetOne, body)
		_, found, err := c.GetTopic(context.Background(), 7)
		var merr *MalformedResponseError
		if !errors.As(err, &merr) {
			t.Errorf("Expected *MalformedResponseError for %s, got %v", body, err)
		}
		if found {
			t.Errorf("Expected found=false for %s", body)
		}
	}
}

func TestListComments(t *testing.T) {
	c, srv := newTestClient(t)
	seedTopics(srv)
	token := srv.Board.IssueToken("2000")

	for _, text := range []string{"hi", "hello", "hey"} {
		if _, err := c.PostComment(context.Background(), token, 101, text); err != nil {
			t.Fatalf("PostComment failed: %v", err)
		}
	}

	comments, err := c.ListComments(context.Background(), 101)
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("Expected 3 comments, got %d", len(comments))
	}
	names := []string{comments[0].Name, comments[1].Name, comments[2].Name}
	if !reflect.DeepEqual(names, []string{"Alice", "Bob", "Carol"}) {
		t.Errorf("Unexpected commenter names %v", names)
	}
	for _, cm := range comments {
		if cm.PID != 101 || cm.CID == 0 || cm.Timestamp == 0 {
			t.Errorf("Comment fields not decoded: %+v", cm)
		}
	}

	empty, err := c.ListComments(context.Background(), 103)
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected an empty, non-nil list, got %#v", empty)
	}
}

func TestSearchTopics(t *testing.T) {
	c, srv := newTestClient(t)
	seedTopics(srv)

	topics, err := c.SearchTopics(context.Background(), "topic", 10)
	if err != nil {
		t.Fatalf("SearchTopics failed: %v", err)
	}
	if len(topics) != 1 || topics[0].PID != 101 {
		t.Errorf("Expected only topic 101, got %+v", topics)
	}

	req, _ := srv.LastRequest()
	if req.Method != http.MethodPost || req.Query.Get("action") != ActionSearch {
		t.Errorf("Expected POST with action=search, got %s %v", req.Method, req.Query)
	}
	form := req.Form()
	if form.Get("keywords") != "topic" || form.Get("pagesize") != "10" {
		t.Errorf("Unexpected search form %v", form)
	}
}

func TestLogin(t *testing.T) {
	t.Run("Canned Reply", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.HandleJSON(holetest.LoginAction, `{"code":0,"token":"abc","uid":"2018xxxxx"}`)

		user, err := c.Login(context.Background(), "2018xxxxx", "secret")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if user != (models.User{UID: "2018xxxxx", Token: "abc"}) {
			t.Errorf("Unexpected user %+v", user)
		}

		req, _ := srv.LastRequest()
		if req.Path != config.LoginPath || req.Query.Get("platform") != config.Platform {
			t.Errorf("Unexpected login request %s?%v", req.Path, req.Query)
		}
		form := req.Form()
		if form.Get("uid") != "2018xxxxx" || form.Get("password") != "secret" {
			t.Errorf("Unexpected login form %v", form)
		}
	})

	t.Run("Numeric UID", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.HandleJSON(holetest.LoginAction, `{"code":0,"token":"abc","uid":1800012345}`)
		user, err := c.Login(context.Background(), "1800012345", "secret")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if user.UID != "1800012345" {
			t.Errorf("Expected uid 1800012345, got %q", user.UID)
		}
	})

	t.Run("Missing Token", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.HandleJSON(holetest.LoginAction, `{"code":0,"uid":"2018xxxxx"}`)
		_, err := c.Login(context.Background(), "2018xxxxx", "secret")
		var merr *MalformedResponseError
		if !errors.As(err, &merr) {
			t.Errorf("Expected *MalformedResponseError, got %T (%v)", err, err)
		}
	})

	t.Run("Bad Password", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.Board.AddUser("2000", "right")
		_, err := c.Login(context.Background(), "2000", "wrong")
		var rerr *ServerRejectedError
		if !errors.As(err, &rerr) {
			t.Fatalf("Expected *ServerRejectedError, got %T (%v)", err, err)
		}
		if rerr.Message != holetest.MsgBadLogin {
			t.Errorf("Expected message %q, got %q", holetest.MsgBadLogin, rerr.Message)
		}
	})
}

func TestPostText(t *testing.T) {
	c, srv := newTestClient(t)
	srv.HandleJSON(ActionPost, `{"code":0,"data":12345}`)

	pid, err := c.PostText(context.Background(), "tok", "hello & 你好 = world")
	if err != nil {
		t.Fatalf("PostText failed: %v", err)
	}
	if pid != 12345 {
		t.Errorf("Expected pid 12345, got %d", pid)
	}

	req, _ := srv.LastRequest()
	form := req.Form()
	if form.Get("text") != "hello & 你好 = world" {
		t.Errorf("Text did not survive form encoding, got %q", form.Get("text"))
	}
	if form.Get("token") != "tok" || form.Get("type") != "text" {
		t.Errorf("Unexpected post form %v", form)
	}

	srv.HandleJSON(ActionPost, `{"code":0,"data":"678"}`)
	if pid, err := c.PostText(context.Background(), "tok", "x"); err != nil || pid != 678 {
		t.Errorf("Expected pid 678 from a string id, got %d (%v)", pid, err)
	}

	srv.HandleJSON(ActionPost, `{"code":0}`)
	_, err = c.PostText(context.Background(), "tok", "x")
	var merr *MalformedResponseError
	if !errors.As(err, &merr) {
		t.Errorf("Expected *MalformedResponseError for a missing id, got %T (%v)", err, err)
	}
}

func TestPostImage(t *testing.T) {
	c, srv := newTestClient(t)
	srv.HandleJSON(ActionPost, `{"code":0,"data":1}`)

	image := []byte("\x89PNG\r\n&data=+/ raw%20")
	if err := c.PostImage(context.Background(), "tok", "see this", image); err != nil {
		t.Fatalf("PostImage failed: %v", err)
	}

	req, _ := srv.LastRequest()
	want := append([]byte("token=tok&type=image&text=see+this&data="), image...)
	if !bytes.Equal(req.Body, want) {
		t.Errorf("Unexpected image body:\n got: %q\nwant: %q", req.Body, want)
	}
	if req.Query.Get("action") != ActionPost {
		t.Errorf("Expected action %q, got %q", ActionPost, req.Query.Get("action"))
	}
}

func TestSetFollow(t *testing.T) {
	t.Run("Already Followed Message", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.HandleJSON(ActionSetFollow, `{"code":1,"msg":"already followed"}`)

		err := c.SetFollow(context.Background(), "tok", 7, true)
		var rerr *ServerRejectedError
		if !errors.As(err, &rerr) {
			t.Fatalf("Expected *ServerRejectedError, got %T (%v)", err, err)
		}
		if rerr.Code != 1 || rerr.Message != "already followed" {
			t.Errorf("Expected (1, already followed), got (%d, %q)", rerr.Code, rerr.Message)
		}
		if !errors.Is(err, ErrAlreadyFollowed) {
			t.Error("Expected error to match ErrAlreadyFollowed")
		}

		req, _ := srv.LastRequest()
		form := req.Form()
		if form.Get("switch") != "1" || form.Get("pid") != "7" || form.Get("token") != "tok" {
			t.Errorf("Unexpected follow form %v", form)
		}
	})

	t.Run("Board", func(t *testing.T) {
		c, srv := newTestClient(t)
		seedTopics(srv)
		token := srv.Board.IssueToken("2000")
		ctx := context.Background()

		if err := c.SetFollow(ctx, token, 101, true); err != nil {
			t.Fatalf("SetFollow on failed: %v", err)
		}
		err := c.SetFollow(ctx, token, 101, true)
		if !errors.Is(err, ErrAlreadyFollowed) {
			t.Errorf("Expected duplicate follow to match ErrAlreadyFollowed, got %v", err)
		}

		followed, err := c.ListFollowed(ctx, token)
		if err != nil {
			t.Fatalf("ListFollowed failed: %v", err)
		}
		if len(followed) != 1 || followed[0].PID != 101 || followed[0].LikeNum != 1 {
			t.Errorf("Unexpected followed list %+v", followed)
		}

		if err := c.SetFollow(ctx, token, 101, false); err != nil {
			t.Fatalf("SetFollow off failed: %v", err)
		}
		req, _ := srv.LastRequest()
		if req.Form().Get("switch") != "0" {
			t.Errorf("Expected switch=0, got %q", req.Form().Get("switch"))
		}
		followed, err = c.ListFollowed(ctx, token)
		if err != nil {
			t.Fatalf("ListFollowed failed: %v", err)
		}
		if len(followed) != 0 {
			t.Errorf("Expected empty followed list, got %+v", followed)
		}
	})

	t.Run("Other Rejections", func(t *testing.T) {
		c, _ := newTestClient(t)
		err := c.SetFollow(context.Background(), "stale", 101, true)
		var rerr *ServerRejectedError
		if !errors.As(err, &rerr) || rerr.Message != holetest.MsgBadToken {
			t.Fatalf("Expected bad token rejection, got %v", err)
		}
		if errors.Is(err, ErrAlreadyFollowed) {
			t.Error("A bad token must not match ErrAlreadyFollowed")
		}
	})
}

func TestReport(t *testing.T) {
	c, srv := newTestClient(t)
	seedTopics(srv)
	token := srv.Board.IssueToken("2000")
	ctx := context.Background()

	ok, err := c.Report(ctx, token, 103, "spam")
	if err != nil || !ok {
		t.Fatalf("Expected report to succeed, got %v (%v)", ok, err)
	}
	reports := srv.Board.Reports()
	if len(reports) != 1 || reports[0] != (holetest.Report{PID: 103, UID: "2000", Reason: "spam"}) {
		t.Errorf("Unexpected reports %+v", reports)
	}

	ok, err = c.Report(ctx, token, 999, "spam")
	if err != nil {
		t.Errorf("Expected a rejected report to return a nil error, got %v", err)
	}
	if ok {
		t.Error("Expected a rejected report to return false")
	}

	srv.Handle(ActionReport, holetest.Reply{Status: http.StatusBadGateway})
	ok, err = c.Report(ctx, token, 103, "spam")
	var terr *TransportError
	if !errors.As(err, &terr) || ok {
		t.Errorf("Expected transport failures to still be returned, got %v (%v)", ok, err)
	}
}

func TestServerRejected(t *testing.T) {
	c, srv := newTestClient(t)
	srv.HandleJSON(ActionList, `{"code":2,"msg":"系统维护中，请稍后再试"}`)

	_, err := c.ListTopics(context.Background(), 1)
	var rerr *ServerRejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected *ServerRejectedError, got %T (%v)", err, err)
	}
	if rerr.Code != 2 || rerr.Message != "系统维护中，请稍后再试" {
		t.Errorf("Expected the server message verbatim, got (%d, %q)", rerr.Code, rerr.Message)
	}
}

func TestMalformedResponses(t *testing.T) {
	c, srv := newTestClient(t)

	testCases := []struct {
		name string
		body string
	}{
		{"Not JSON", "<html>502</html>"},
		{"Empty Body", ""},
		{"JSON Null", "null"},
		{"JSON Array", "[1,2,3]"},
		{"Missing Code", `{"data":[]}`},
		{"Non Integer Code", `{"code":"ok"}`},
		{"Fractional Code", `{"code":0.5}`},
		{"Code Out Of Range", `{"code":1e20}`},
		{"Wrong Data Shape", `{"code":0,"data":{"pid":1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv.HandleJSON(ActionList, tc.body)
			_, err := c.ListTopics(context.Background(), 1)
			var merr *MalformedResponseError
			if !errors.As(err, &merr) {
				t.Errorf("Expected *MalformedResponseError for %q, got %T (%v)", tc.body, err, err)
			}
		})
	}
}

func TestFetchImage(t *testing.T) {
	c, srv := newTestClient(t)
	seedTopics(srv)
	payload := []byte("\xff\xd8\xff\xe0 not really a jpeg")
	srv.Board.SeedImage("102.jpeg", payload)

	topic, _, err := c.GetTopic(context.Background(), 102)
	if err != nil {
		t.Fatalf("GetTopic failed: %v", err)
	}
	if want := srv.URL + config.PicPath + "102.jpeg"; c.ImageURL(topic) != want {
		t.Errorf("Expected image URL %q, got %q", want, c.ImageURL(topic))
	}

	data, err := c.FetchImage(context.Background(), topic)
	if err != nil {
		t.Fatalf("FetchImage failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Expected image bytes %q, got %q", payload, data)
	}

	text, _, _ := c.GetTopic(context.Background(), 101)
	if _, err := c.FetchImage(context.Background(), text); !errors.Is(err, ErrNoImage) {
		t.Errorf("Expected ErrNoImage for a text topic, got %v", err)
	}
	if c.ImageURL(text) != "" {
		t.Errorf("Expected no image URL for a text topic, got %q", c.ImageURL(text))
	}

	missing := models.Topic{PID: 5, Type: models.TypeImage, URL: "gone.jpeg"}
	_, err = c.FetchImage(context.Background(), missing)
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Status != http.StatusNotFound {
		t.Errorf("Expected 404 TransportError, got %v", err)
	}
}

// TestBoardSession walks through a full session against the stub board.
func TestBoardSession(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Board.AddUser("1800012345", "hunter2")
	ctx := context.Background()

	user, err := c.Login(ctx, "1800012345", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pid, err := c.PostText(ctx, user.Token, "anyone up for badminton?")
	if err != nil {
		t.Fatalf("PostText failed: %v", err)
	}
	if _, err := c.PostText(ctx, user.Token, "   "); err == nil {
		t.Error("Expected empty post to be rejected")
	}

	cid, err := c.PostComment(ctx, user.Token, pid, "me!")
	if err != nil {
		t.Fatalf("PostComment failed: %v", err)
	}
	if cid <= 0 {
		t.Errorf("Expected a positive comment id, got %d", cid)
	}

	topic, found, err := c.GetTopic(ctx, pid)
	if err != nil || !found {
		t.Fatalf("GetTopic failed: found=%v err=%v", found, err)
	}
	if topic.Text != "anyone up for badminton?" || topic.Reply != 1 {
		t.Errorf("Unexpected topic %+v", topic)
	}

	list, err := c.ListTopics(ctx, 1)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if len(list) != 1 || list[0].PID != pid {
		t.Errorf("Expected the new topic on page 1, got %+v", list)
	}

	if _, err := c.ListFollowed(ctx, "stale-token"); err == nil {
		t.Error("Expected ListFollowed with a bad token to fail")
	}
}
