package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type modifyCall struct {
	ID     string
	Add    []string
	Remove []string
}

// fakeGmail serves the subset of the Gmail REST API the store uses
type fakeGmail struct {
	mu        sync.Mutex
	order     []string
	messages  map[string]*gmail.Message
	historyID uint64
	history   []uint64
	expired   bool
	modifies  []modifyCall
	trashed   []string
	untrashed []string
	sent      []string
}

func newFakeGmail(t *testing.T) (*fakeGmail, *Client) {
	t.Helper()
	f := &fakeGmail{messages: make(map[string]*gmail.Message), historyID: 100}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/profile", f.profile)
	mux.HandleFunc("GET /gmail/v1/users/me/messages", f.list)
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", f.get)
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", f.modify)
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/trash", f.trash)
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/untrash", f.untrash)
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", f.send)
	mux.HandleFunc("GET /gmail/v1/users/me/history", f.listHistory)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return f, NewClient(svc)
}

func (f *fakeGmail) add(id string, internalDate int64, labels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[id]; !ok {
		f.order = append(f.order, id)
	}
	f.messages[id] = &gmail.Message{
		Id:           id,
		InternalDate: internalDate,
		LabelIds:     labels,
		Snippet:      "snippet " + id,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "subject " + id},
				{Name: "From", Value: "Alice <alice@example.com>"},
			},
			Body: &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("body " + id))},
		},
	}
}

// bump records a history entry as if the mailbox changed
func (f *fakeGmail) bump() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyID++
	f.history = append(f.history, f.historyID)
}

func (f *fakeGmail) modifyCalls() []modifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]modifyCall(nil), f.modifies...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func (f *fakeGmail) profile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, &gmail.Profile{EmailAddress: "me@example.com", HistoryId: f.historyID})
}

func (f *fakeGmail) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	labels := query["labelIds"]
	includeSpamTrash := query.Get("includeSpamTrash") == "true"
	archivedOnly := strings.Contains(query.Get("q"), "-in:inbox")
	max, _ := strconv.Atoi(query.Get("maxResults"))

	f.mu.Lock()
	defer f.mu.Unlock()
	res := &gmail.ListMessagesResponse{}
	for i := len(f.order) - 1; i >= 0; i-- {
		m := f.messages[f.order[i]]
		has := func(l string) bool { return slices.Contains(m.LabelIds, l) }
		if !includeSpamTrash && !slices.Contains(labels, "SPAM") && !slices.Contains(labels, "TRASH") && (has("SPAM") || has("TRASH")) {
			continue
		}
		if archivedOnly && (has("INBOX") || has("SENT") || has("DRAFT")) {
			continue
		}
		match := true
		for _, l := range labels {
			if !has(l) {
				match = false
			}
		}
		if !match {
			continue
		}
		res.Messages = append(res.Messages, &gmail.Message{Id: m.Id})
		if max > 0 && len(res.Messages) == max {
			break
		}
	}
	writeJSON(w, res)
}

func (f *fakeGmail) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, m)
}

func (f *fakeGmail) modify(w http.ResponseWriter, r *http.Request) {
	var req gmail.ModifyMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	f.modifies = append(f.modifies, modifyCall{ID: id, Add: req.AddLabelIds, Remove: req.RemoveLabelIds})
	labels := slices.DeleteFunc(slices.Clone(m.LabelIds), func(l string) bool { return slices.Contains(req.RemoveLabelIds, l) })
	for _, l := range req.AddLabelIds {
		if !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	m.LabelIds = labels
	writeJSON(w, m)
}

func (f *fakeGmail) trash(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trashed = append(f.trashed, r.PathValue("id"))
	writeJSON(w, &gmail.Message{Id: r.PathValue("id")})
}

func (f *fakeGmail) untrash(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.untrashed = append(f.untrashed, r.PathValue("id"))
	writeJSON(w, &gmail.Message{Id: r.PathValue("id")})
}

func (f *fakeGmail) send(w http.ResponseWriter, r *http.Request) {
	var msg gmail.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(raw))
	writeJSON(w, &gmail.Message{Id: "sent-" + strconv.Itoa(len(f.sent))})
}

func (f *fakeGmail) listHistory(w http.ResponseWriter, r *http.Request) {
	start, _ := strconv.ParseUint(r.URL.Query().Get("startHistoryId"), 10, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired {
		f.expired = false
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	res := &gmail.ListHistoryResponse{HistoryId: f.historyID}
	for _, id := range f.history {
		if id > start {
			res.History = append(res.History, &gmail.History{Id: id})
		}
	}
	writeJSON(w, res)
}
