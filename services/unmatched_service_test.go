package services_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"scoreboard-ingest-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func assignRequest(t *testing.T, unmatchedID, sessionID string) *http.Request {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})
	req, err := http.NewRequest("POST", fmt.Sprintf("/admin/unmatched/%s/assign", unmatchedID), bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-gateway-token")
	return req
}

// pendingCapture uploads and processes a board nobody's roster matches,
// returning the resulting queue entry.
func pendingCapture(t *testing.T, app *fiber.App, db *gorm.DB, token string) models.UnmatchedIngest {
	t.Helper()
	resp, err := app.Test(uploadRequest(t, token, []byte("unplaceable-photo-"+t.Name())), -1)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	ingestID := decodeBody(t, resp)["ingest_id"].(string)
	if _, err := app.Test(processRequest(t, token, ingestID), -1); err != nil {
		t.Fatalf("process: %v", err)
	}

	var entry models.UnmatchedIngest
	if err := db.First(&entry, "ingest_id = ?", ingestID).Error; err != nil {
		t.Fatalf("no queue entry: %v", err)
	}
	return entry
}

func TestAssignUnmatchedCaptureToSession(t *testing.T) {
	db := newTestDB(t)
	// Names fuzzy enough that auto-resolution refuses, but an operator
	// recognizes the squad.
	fake := &fakeExtractor{result: extractionFor(
		[2][]string{{"A1ice?", "B0b!!x"}, {"v1", "v2"}}, "blue", "sig-manual")}
	app, _ := newTestApp(t, db, fake)
	_, token := seedDevice(t, db, "tablet")
	sess := seedSession(t, db, "Tuesday 2s", "2v2", "Alice", "Bob")

	entry := pendingCapture(t, app, db, token)

	resp, err := app.Test(assignRequest(t, entry.ID, sess.ID), -1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["deduped"] != false {
		t.Fatalf("fresh assignment flagged deduped: %v", body)
	}
	matchID := body["match_id"].(string)

	var reloadedEntry models.UnmatchedIngest
	db.First(&reloadedEntry, "id = ?", entry.ID)
	if reloadedEntry.Status != models.UnmatchedStatusAssigned {
		t.Fatalf("entry status = %s, want assigned", reloadedEntry.Status)
	}
	if reloadedEntry.AssignedSessionID == nil || *reloadedEntry.AssignedSessionID != sess.ID {
		t.Fatalf("assigned session = %v", reloadedEntry.AssignedSessionID)
	}

	var ingest models.Ingest
	db.First(&ingest, "id = ?", entry.IngestID)
	if ingest.Status != models.IngestStatusExtracted || ingest.MatchID == nil || *ingest.MatchID != matchID {
		t.Fatalf("ingest = %s match=%v, want extracted with %s", ingest.Status, ingest.MatchID, matchID)
	}

	// Assignment walked the same application path: totals applied.
	var reloadedSession models.Session
	db.First(&reloadedSession, "id = ?", sess.ID)
	if reloadedSession.MatchCount != 1 {
		t.Fatalf("session match_count = %d, want 1", reloadedSession.MatchCount)
	}
}

func TestAssignDedupesOnSignatureCollision(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeExtractor{result: extractionFor(
		[2][]string{{"Alice", "Bob"}, {"v1", "v2"}}, "blue", "same-event")}
	app, _ := newTestApp(t, db, fake)
	_, token := seedDevice(t, db, "tablet")
	sess := seedSession(t, db, "Tuesday 2s", "2v2", "Alice", "Bob")

	// First capture auto-applies.
	resp, _ := app.Test(uploadRequest(t, token, []byte("first-photo")), -1)
	firstIngest := decodeBody(t, resp)["ingest_id"].(string)
	resp, _ = app.Test(processRequest(t, token, firstIngest), -1)
	autoMatchID := decodeBody(t, resp)["match_id"].(string)

	// Deactivate the session so the second capture of the same board cannot
	// auto-resolve and lands in the queue... then bring it back for the
	// operator's assignment.
	db.Model(&models.Session{}).Where("id = ?", sess.ID).Update("active", false)
	entry := pendingCapture(t, app, db, token)
	db.Model(&models.Session{}).Where("id = ?", sess.ID).Update("active", true)

	var playersBefore int64
	db.Model(&models.MatchPlayer{}).Count(&playersBefore)

	resp, err := app.Test(assignRequest(t, entry.ID, sess.ID), -1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	body := decodeBody(t, resp)
	if body["deduped"] != true {
		t.Fatalf("signature collision not deduped: %v", body)
	}
	if body["match_id"] != autoMatchID {
		t.Fatalf("assignment minted a new match: %v vs %s", body["match_id"], autoMatchID)
	}

	var playersAfter int64
	db.Model(&models.MatchPlayer{}).Count(&playersAfter)
	if playersAfter != playersBefore {
		t.Fatalf("MatchPlayer rows grew from %d to %d on a deduped assign", playersBefore, playersAfter)
	}

	// No double application either.
	var reloaded models.Session
	db.First(&reloaded, "id = ?", sess.ID)
	if reloaded.MatchCount != 1 {
		t.Fatalf("session match_count = %d, want 1", reloaded.MatchCount)
	}
}

func TestAssignToEndedSessionRejected(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeExtractor{result: extractionFor(
		[2][]string{{"x1", "x2"}, {"y1", "y2"}}, "blue", "sig-e")}
	app, _ := newTestApp(t, db, fake)
	_, token := seedDevice(t, db, "tablet")
	sess := seedSession(t, db, "Done and dusted", "2v2", "Alice", "Bob")

	entry := pendingCapture(t, app, db, token)

	now := time.Now()
	db.Model(&models.Session{}).Where("id = ?", sess.ID).Update("ended_at", now)

	resp, err := app.Test(assignRequest(t, entry.ID, sess.ID), -1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAssignTwiceRejected(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeExtractor{result: extractionFor(
		[2][]string{{"x1", "x2"}, {"y1", "y2"}}, "blue", "sig-t")}
	app, _ := newTestApp(t, db, fake)
	_, token := seedDevice(t, db, "tablet")
	sess := seedSession(t, db, "Tuesday 2s", "2v2", "Alice", "Bob")

	entry := pendingCapture(t, app, db, token)

	if resp, _ := app.Test(assignRequest(t, entry.ID, sess.ID), -1); resp.StatusCode != http.StatusOK {
		t.Fatalf("first assign failed: %d", resp.StatusCode)
	}
	resp, err := app.Test(assignRequest(t, entry.ID, sess.ID), -1)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second assign status = %d, want 409", resp.StatusCode)
	}
}

func TestAssignUnknownSessionNotFound(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeExtractor{result: extractionFor(
		[2][]string{{"x1", "x2"}, {"y1", "y2"}}, "blue", "sig-n")}
	app, _ := newTestApp(t, db, fake)
	_, token := seedDevice(t, db, "tablet")
	seedSession(t, db, "Tuesday 2s", "2v2", "Alice", "Bob")

	entry := pendingCapture(t, app, db, token)

	resp, err := app.Test(assignRequest(t, entry.ID, "no-such-session"), -1)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
