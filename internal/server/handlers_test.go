package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/callsift/callsift/internal/match"
	"github.com/callsift/callsift/internal/store"
)

const matchTarget = "/match/keywords?conversation_id=conv-1&project_id=2&builder_name=Acme+Builders"

func decodeJSON(t *testing.T, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// ---------------------------------------------------------------------------
// POST /match/keywords
// ---------------------------------------------------------------------------

func TestMatchKeywords_Success(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "POST", matchTarget, masterKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body matchResponse
	decodeJSON(t, resp.Body, &body)

	if body.Status != "success" {
		t.Errorf("status = %q, want success", body.Status)
	}
	if body.AgentID != "agent-9" || body.ConversationID != "conv-1" {
		t.Errorf("conversation meta = %q/%q, want agent-9/conv-1", body.AgentID, body.ConversationID)
	}
	if body.ProjectID != 2 || body.BuilderName != "Acme Builders" {
		t.Errorf("project meta = %d/%q", body.ProjectID, body.BuilderName)
	}
	if body.AgentSpeaker != "Speaker_1" || body.CustomerSpeaker != "Speaker_0" {
		t.Errorf("speaker labels = %q/%q", body.AgentSpeaker, body.CustomerSpeaker)
	}
	if len(body.DiarizedText) != 3 {
		t.Errorf("diarized_text has %d segments, want 3", len(body.DiarizedText))
	}

	if len(body.MatchedKeywords) != 1 || body.MatchedKeywords[0].Category != "Billing" {
		t.Fatalf("matched_Keywords = %+v, want one Billing category", body.MatchedKeywords)
	}
	kws := body.MatchedKeywords[0].Keywords
	if len(kws) != 2 {
		t.Fatalf("keywords = %d entries, want 2", len(kws))
	}
	if kws[0].Keyword != "refund request" || kws[0].CountBySpeaker.Agent.Count != 1 {
		t.Errorf("refund request agent count = %d, want 1", kws[0].CountBySpeaker.Agent.Count)
	}
	if kws[1].Keyword != "cancel subscription" || kws[1].CountBySpeaker.Customer.Count != 1 {
		t.Errorf("cancel subscription customer count = %d, want 1", kws[1].CountBySpeaker.Customer.Count)
	}
}

func TestMatchKeywords_ErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		mutate   func(*fakeStore)
		wantCode string
	}{
		{
			name:     "unknown conversation",
			target:   "/match/keywords?conversation_id=ghost&project_id=2&builder_name=Acme+Builders",
			wantCode: "ERR-1001",
		},
		{
			name:     "project mismatch",
			target:   "/match/keywords?conversation_id=conv-1&project_id=7&builder_name=Acme+Builders",
			wantCode: "ERR-1002",
		},
		{
			name:     "builder mismatch",
			target:   "/match/keywords?conversation_id=conv-1&project_id=2&builder_name=Wrong+Builder",
			wantCode: "ERR-1003",
		},
		{
			name:   "missing transcription",
			target: matchTarget,
			mutate: func(f *fakeStore) {
				delete(f.transcriptions, "conv-1")
			},
			wantCode: "ERR-1004",
		},
		{
			name:   "missing keywords",
			target: matchTarget,
			mutate: func(f *fakeStore) {
				f.keywordRecs = map[string]*store.KeywordRecord{}
			},
			wantCode: "ERR-1005",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := seededStore()
			if tt.mutate != nil {
				tt.mutate(st)
			}
			s := newTestServer(t, st)

			resp := request(t, s, "POST", tt.target, masterKey, nil)
			if resp.StatusCode != http.StatusNotFound {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
			}

			var body map[string]any
			decodeJSON(t, resp.Body, &body)
			if got := body["Error code"]; got != tt.wantCode {
				t.Errorf("error code = %v, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestMatchKeywords_MissingParams(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "POST", "/match/keywords?conversation_id=conv-1", masterKey, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

// ---------------------------------------------------------------------------
// POST /match/keywords/export
// ---------------------------------------------------------------------------

func TestExportKeywords_ReturnsWorkbook(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "POST",
		"/match/keywords/export?conversation_id=conv-1&project_id=2&builder_name=Acme+Builders",
		masterKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q, want %q", ct, xlsxContentType)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "matched_keywords_conv-1.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows("Matched Keywords")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("workbook has %d rows, want header plus at least one hit", len(rows))
	}
	if rows[0][0] != "project_id" || rows[0][7] != "matched_text" {
		t.Errorf("header row = %v", rows[0])
	}

	// "refund request" is a spaceless substring of the agent segment.
	found := false
	for _, row := range rows[1:] {
		if row[4] == "refund request" && row[5] == "Agent" {
			found = true
		}
	}
	if !found {
		t.Errorf("no Agent row for refund request, rows: %v", rows[1:])
	}
}

func TestExportKeywords_UnknownConversation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "POST",
		"/match/keywords/export?conversation_id=ghost&project_id=2&builder_name=Acme+Builders",
		masterKey, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// ---------------------------------------------------------------------------
// Keyword management
// ---------------------------------------------------------------------------

func TestReplaceKeywords_Success(t *testing.T) {
	t.Parallel()
	st := seededStore()
	s := newTestServer(t, st)

	payload := `{"keywords":[
		{"category":"Pricing","keyword":"discount"},
		{"category":"Pricing","keyword":"payment plan"},
		{"category":"Objections","keyword":"too expensive"},
		{"category":"","keyword":"dropped"},
		{"category":"Pricing","keyword":" "}
	]}`

	resp := request(t, s, "POST",
		"/keywords/replace?project_id=2&builder_name=Acme+Builders",
		masterKey, strings.NewReader(payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	decodeJSON(t, resp.Body, &body)
	if body["total_categories"] != float64(2) {
		t.Errorf("total_categories = %v, want 2", body["total_categories"])
	}
	if body["total_keywords"] != float64(3) {
		t.Errorf("total_keywords = %v, want 3", body["total_keywords"])
	}

	if st.replaced == nil {
		t.Fatal("store never saw the replacement")
	}
	if st.replaced.UpdatedBy != "master" {
		t.Errorf("UpdatedBy = %q, want master", st.replaced.UpdatedBy)
	}
	if len(st.replaced.Set) != 2 || st.replaced.Set[0].Name != "Pricing" {
		t.Errorf("stored set = %+v", st.replaced.Set)
	}
}

func TestReplaceKeywords_ProjectBuilderMismatch(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "POST",
		"/keywords/replace?project_id=2&builder_name=Someone+Else",
		masterKey, strings.NewReader(`{"keywords":[]}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body map[string]any
	decodeJSON(t, resp.Body, &body)
	if body["Error code"] != "ERR-1006" {
		t.Errorf("error code = %v, want ERR-1006", body["Error code"])
	}
}

func TestGetKeywords_PreservesOrder(t *testing.T) {
	t.Parallel()
	st := seededStore()
	st.keywordRecs[recKey(2, "Acme Builders")] = &store.KeywordRecord{
		ProjectID: 2, BuilderName: "Acme Builders",
		Set: match.KeywordSet{
			{Name: "Zeta", Keywords: []string{"z"}},
			{Name: "Alpha", Keywords: []string{"a", "b"}},
		},
	}
	s := newTestServer(t, st)

	resp := request(t, s, "GET", "/keywords?project_id=2&builder_name=acme+builders", masterKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		ProjectID          int              `json:"project_id"`
		BuilderName        string           `json:"builder_name"`
		KeywordsByCategory match.KeywordSet `json:"keywords_by_category"`
	}
	decodeJSON(t, resp.Body, &body)

	if len(body.KeywordsByCategory) != 2 {
		t.Fatalf("categories = %d, want 2", len(body.KeywordsByCategory))
	}
	if body.KeywordsByCategory[0].Name != "Zeta" || body.KeywordsByCategory[1].Name != "Alpha" {
		t.Errorf("category order = %q, %q; want Zeta, Alpha",
			body.KeywordsByCategory[0].Name, body.KeywordsByCategory[1].Name)
	}
}

func TestGetKeywords_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "GET", "/keywords?project_id=9&builder_name=Nobody", masterKey, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body map[string]any
	decodeJSON(t, resp.Body, &body)
	if body["Error code"] != "ERR-1005" {
		t.Errorf("error code = %v, want ERR-1005", body["Error code"])
	}
}

// ---------------------------------------------------------------------------
// GET /builder
// ---------------------------------------------------------------------------

func TestGetBuilder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			target:     "/builder?conversation_id=conv-1&project_id=2",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown conversation",
			target:     "/builder?conversation_id=ghost&project_id=2",
			wantStatus: http.StatusNotFound,
			wantCode:   "ERR-1001",
		},
		{
			name:       "project mismatch",
			target:     "/builder?conversation_id=conv-1&project_id=9",
			wantStatus: http.StatusNotFound,
			wantCode:   "ERR-1002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, seededStore())

			resp := request(t, s, "GET", tt.target, masterKey, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body map[string]any
			decodeJSON(t, resp.Body, &body)
			if tt.wantCode != "" {
				if body["Error code"] != tt.wantCode {
					t.Errorf("error code = %v, want %s", body["Error code"], tt.wantCode)
				}
				return
			}
			if body["builder_name"] != "Acme Builders" {
				t.Errorf("builder_name = %v, want Acme Builders", body["builder_name"])
			}
		})
	}
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

func TestCreateKey(t *testing.T) {
	t.Parallel()
	st := seededStore()
	s := newTestServer(t, st)

	resp := request(t, s, "POST", "/keys", masterKey,
		strings.NewReader(`{"owner_name":"Pat","owner_email":"pat@example.com","description":"CI"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	decodeJSON(t, resp.Body, &body)
	token, _ := body["api_key"].(string)
	if token == "" {
		t.Error("response missing api_key")
	}
	if body["owner_name"] != "Pat" {
		t.Errorf("owner_name = %v, want Pat", body["owner_name"])
	}
	if st.created == nil || st.created.Key != token || !st.created.IsActive {
		t.Errorf("stored key = %+v", st.created)
	}
}

func TestCreateKey_RequiresOwnerName(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "POST", "/keys", masterKey, strings.NewReader(`{"owner_email":"x@y"}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestListKeys(t *testing.T) {
	t.Parallel()
	st := seededStore()
	st.keysList = []store.APIKey{
		{KeyID: "key-2", OwnerName: "Sam"},
		{KeyID: "key-1", OwnerName: "Pat"},
	}
	s := newTestServer(t, st)

	resp := request(t, s, "GET", "/keys", masterKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var keys []map[string]any
	decodeJSON(t, resp.Body, &keys)
	if len(keys) != 2 || keys[0]["key_id"] != "key-2" {
		t.Errorf("keys = %v", keys)
	}
	for _, k := range keys {
		if _, leaked := k["key"]; leaked {
			t.Error("secret token leaked in list response")
		}
	}
}

func TestSetKeyActive(t *testing.T) {
	t.Parallel()
	st := seededStore()
	s := newTestServer(t, st)

	resp := request(t, s, "PUT", "/keys/key-1/deactivate", masterKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if st.activated["key-1"] {
		t.Error("key-1 still active after deactivate")
	}

	resp = request(t, s, "PUT", "/keys/key-1/activate", masterKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !st.activated["key-1"] {
		t.Error("key-1 inactive after activate")
	}
}

func TestSetKeyActive_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, seededStore())

	resp := request(t, s, "PUT", "/keys/ghost/deactivate", masterKey, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
