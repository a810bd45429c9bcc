package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/server"
)

type AddMembersRequest struct {
	UserIds []string `json:"user_ids"`
}

type MarkReadRequest struct {
	MessageIds []string `json:"message_ids"`
}

type AddMembersResponse struct {
	Added []string `json:"added"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func parseObjectId(s string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(s)
}

// identity pulls the authenticated user and organization out of the request
// context. A miss means the middleware did not run; respond 401.
func (s *App) identity(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return "", "", false
	}
	orgId, ok := OrgId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return "", "", false
	}
	return userId, orgId, true
}

func (s *App) createChat(w http.ResponseWriter, r *http.Request) {
	userId, orgId, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req chat.CreateChatInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	created, err := s.svc.CreateChat(r.Context(), req, userId, orgId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, created)
}

func (s *App) listChats(w http.ResponseWriter, r *http.Request) {
	userId, orgId, ok := s.identity(w, r)
	if !ok {
		return
	}

	query := chat.ChatQuery{
		Type:   r.URL.Query().Get("type"),
		Search: r.URL.Query().Get("search"),
	}

	var err error
	if query.Page, err = queryInt(r, "page"); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if query.Limit, err = queryInt(r, "limit"); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := s.svc.GetUserChats(r.Context(), userId, orgId, query)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, page)
}

func (s *App) search(w http.ResponseWriter, r *http.Request) {
	userId, orgId, ok := s.identity(w, r)
	if !ok {
		return
	}

	result, err := s.svc.Search(r.Context(), userId, orgId, r.URL.Query().Get("q"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, result)
}

func (s *App) getChat(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	c, err := s.svc.GetChat(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, c)
}

func (s *App) updateChat(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req chat.UpdateChatInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.svc.UpdateChat(r.Context(), r.PathValue("id"), req, userId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) deleteChat(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeleteChat(r.Context(), r.PathValue("id"), userId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) addMembers(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if len(req.UserIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	added, err := s.svc.AddMembers(r.Context(), r.PathValue("id"), req.UserIds, userId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if added == nil {
		added = []string{}
	}
	s.writeJson(w, http.StatusOK, AddMembersResponse{Added: added})
}

func (s *App) removeMember(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	if err := s.svc.RemoveMember(r.Context(), r.PathValue("id"), r.PathValue("userId"), userId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req chat.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), r.PathValue("id"), req, userId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *App) listMessages(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	query := chat.MessageQuery{
		MessageType: r.URL.Query().Get("message_type"),
		Search:      r.URL.Query().Get("search"),
	}

	var err error
	if query.Page, err = queryInt(r, "page"); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if query.Limit, err = queryInt(r, "limit"); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if query.StartDate, err = queryTime(r, "start_date"); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if query.EndDate, err = queryTime(r, "end_date"); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := s.svc.GetChatMessages(r.Context(), r.PathValue("id"), query, userId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, page)
}

func (s *App) updateMessage(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req chat.UpdateMessageInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.svc.UpdateMessage(r.Context(), r.PathValue("id"), r.PathValue("messageId"), req, userId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeleteMessage(r.Context(), r.PathValue("id"), r.PathValue("messageId"), userId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	userId, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.svc.MarkMessagesRead(r.Context(), r.PathValue("id"), req.MessageIds, userId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) getPresence(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.identity(w, r); !ok {
		return
	}

	presence, err := s.presence.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, presence)
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, orgId, ok := s.identity(w, r)
	if !ok {
		return
	}

	// connections must declare their tenant; it has to match the session's
	if handshakeOrg := r.URL.Query().Get("organization_id"); handshakeOrg != orgId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userOID, err := parseObjectId(userId)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUser(r.Context(), userOID)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(userResponse(user), conn, s.router, s.svc, s.log)

	if err := s.router.Register(r.Context(), client, userId, orgId); err != nil {
		s.log.Printf("register session: %v", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
