package holetest

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"pkuhole/models"

	"github.com/google/uuid"
)

// PageSize is the number of topics per getlist page.
const PageSize = 30

// Report is a report received by the board.
type Report struct {
	PID    int64
	UID    string
	Reason string
}

// Board is the state behind the default handlers.
type Board struct {
	mu       sync.Mutex
	nextPID  int64
	nextCID  int64
	topics   map[int64]*models.Topic
	deleted  map[int64]bool
	comments map[int64][]models.Comment
	images   map[string][]byte
	users    map[string]string // uid -> password
	tokens   map[string]string // token -> uid
	follows  map[string]map[int64]bool
	reports  []Report
}

func NewBoard() *Board {
	return &Board{
		nextPID:  1,
		nextCID:  1,
		topics:   make(map[int64]*models.Topic),
		deleted:  make(map[int64]bool),
		comments: make(map[int64][]models.Comment),
		images:   make(map[string][]byte),
		users:    make(map[string]string),
		tokens:   make(map[string]string),
		follows:  make(map[string]map[int64]bool),
	}
}

// AddUser registers credentials accepted by the login path.
func (b *Board) AddUser(uid, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[uid] = password
}

// IssueToken logs uid in without a password and returns the token.
func (b *Board) IssueToken(uid string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueToken(uid)
}

func (b *Board) issueToken(uid string) string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	b.tokens[token] = uid
	return token
}

func (b *Board) login(uid, password string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pw, ok := b.users[uid]; !ok || pw != password {
		return "", false
	}
	return b.issueToken(uid), true
}

func (b *Board) uidFor(token string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.tokens[token]
	return uid, ok
}

// Seed adds topics as they are, keeping their pids. Later posts get pids
// above the highest seeded one.
func (b *Board) Seed(topics ...models.Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		t := t
		b.topics[t.PID] = &t
		if t.PID >= b.nextPID {
			b.nextPID = t.PID + 1
		}
	}
}

// SeedImage stores image bytes served under the picture path.
func (b *Board) SeedImage(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images[name] = data
}

// Delete hides a topic the way the real server does: getone answers with null data.
func (b *Board) Delete(pid int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted[pid] = true
}

// Topic returns a copy of a topic.
func (b *Board) Topic(pid int64) (models.Topic, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[pid]
	if !ok || b.deleted[pid] {
		return models.Topic{}, false
	}
	return *t, true
}

// Reports returns the reports received so far.
func (b *Board) Reports() []Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Report(nil), b.reports...)
}

// Image returns the stored payload of an image topic.
func (b *Board) Image(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.images[name]
	return data, ok
}

// visible returns live topics, newest first.
func (b *Board) visible() []models.Topic {
	out := make([]models.Topic, 0, len(b.topics))
	for pid, t := range b.topics {
		if !b.deleted[pid] {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID > out[j].PID })
	return out
}

func (b *Board) page(p int) []models.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p < 1 {
		p = 1
	}
	all := b.visible()
	from := (p - 1) * PageSize
	if from >= len(all) {
		return nil
	}
	return all[from:min(from+PageSize, len(all))]
}

func (b *Board) search(keywords string, limit int) []models.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Topic
	for _, t := range b.visible() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(t.Text, keywords) {
			out = append(out, t)
		}
	}
	return out
}

func (b *Board) commentsFor(pid int64) []models.Comment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Comment(nil), b.comments[pid]...)
}

func (b *Board) post(text string, typ models.TopicType, image []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	pid := b.nextPID
	b.nextPID++
	t := &models.Topic{PID: pid, Text: text, Type: typ, Timestamp: time.Now().Unix()}
	if image != nil {
		t.URL = strconv.FormatInt(pid, 10) + ".jpeg"
		b.images[t.URL] = image
	}
	b.topics[pid] = t
	return pid
}

func (b *Board) comment(pid int64, text string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[pid]
	if !ok || b.deleted[pid] {
		return 0, false
	}
	cid := b.nextCID
	b.nextCID++
	n := len(b.comments[pid])
	b.comments[pid] = append(b.comments[pid], models.Comment{
		CID:       cid,
		PID:       pid,
		Name:      commenterName(n),
		Text:      text,
		Timestamp: time.Now().Unix(),
	})
	t.Reply++
	return cid, true
}

// commenterName mimics the anonymous names the service hands out per topic.
func commenterName(n int) string {
	names := []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Francis", "Grace", "Hans"}
	if n < len(names) {
		return names[n]
	}
	return names[n%len(names)] + " " + strconv.Itoa(n/len(names)+1)
}

// setFollow returns false when following an already followed topic.
func (b *Board) setFollow(uid string, pid int64, on bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.follows[uid]
	if set == nil {
		set = make(map[int64]bool)
		b.follows[uid] = set
	}
	if on {
		if set[pid] {
			return false
		}
		set[pid] = true
		if t, ok := b.topics[pid]; ok {
			t.LikeNum++
		}
		return true
	}
	if set[pid] {
		delete(set, pid)
		if t, ok := b.topics[pid]; ok && t.LikeNum > 0 {
			t.LikeNum--
		}
	}
	return true
}

func (b *Board) followed(uid string) []models.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Topic
	for _, t := range b.visible() {
		if b.follows[uid][t.PID] {
			out = append(out, t)
		}
	}
	return out
}

func (b *Board) report(uid string, pid int64, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[pid]; !ok || b.deleted[pid] {
		return false
	}
	b.reports = append(b.reports, Report{PID: pid, UID: uid, Reason: reason})
	return true
}
