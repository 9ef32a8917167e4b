package emulator

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
)

func (s *Server) record(w http.ResponseWriter, r *http.Request, op string, withBody bool) {
	rec := RecordedActivity{
		Operation:      op,
		ConversationID: r.PathValue("conversationId"),
		ActivityID:     r.PathValue("activityId"),
		ID:             uuid.NewString(),
	}

	if withBody {
		if err := json.NewDecoder(r.Body).Decode(&rec.Activity); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "malformed activity")
			return
		}
	}
	if op == "update" || op == "delete" {
		rec.ID = rec.ActivityID
	}

	s.mu.Lock()
	s.activities = append(s.activities, rec)
	s.mu.Unlock()

	s.log.Info("activity received",
		"operation", op,
		"conversation_id", rec.ConversationID,
		"text", rec.Activity.Text,
	)

	if op == "delete" {
		w.WriteHeader(http.StatusOK)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, connector.ResourceResponse{ID: rec.ID})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	s.record(w, r, "send", true)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	s.record(w, r, "reply", true)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.record(w, r, "update", true)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.record(w, r, "delete", false)
}

// handleMembers lists the accounts seen in activities delivered to the
// conversation.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationId")

	s.mu.Lock()
	known, ok := s.members[conversationID]
	out := make([]connector.ChannelAccount, 0, len(known))
	for _, m := range known {
		out = append(out, m)
	}
	s.mu.Unlock()

	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "ConversationNotFound", "unknown conversation")
		return
	}
	slices.SortFunc(out, func(a, b connector.ChannelAccount) int { return strings.Compare(a.ID, b.ID) })
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleActivities(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, s.Activities())
}
