package api

import (
	"net/http"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/content"
	"github.com/UkralStul/oraculum-service/internal/domain"
)

// === Post Handlers ===

type createPostRequest struct {
	UserID   string   `json:"userId"`
	Title    string   `json:"title"`
	Context  string   `json:"context"`
	Author   string   `json:"author"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	ImageURL string   `json:"imageUrl"`
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	post, err := h.Content.CreatePost(r.Context(), content.NewPost{
		UserID:   userID,
		Title:    req.Title,
		Context:  req.Context,
		Author:   req.Author,
		Category: req.Category,
		Tags:     req.Tags,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, post)
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Storage.GetPosts(r.Context(), 0, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, posts)
}

type idRequest struct {
	ID string `json:"id"`
}

func (h *Handler) postDetails(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, domain.InvalidInput("Post ID is required"))
		return
	}
	post, err := h.Storage.GetPostByID(r.Context(), req.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, post)
}

// === Answer Handlers ===

type createAnswerRequest struct {
	PostID  string `json:"postId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

func (h *Handler) createAnswer(w http.ResponseWriter, r *http.Request) {
	var req createAnswerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	answer, err := h.Content.CreateAnswer(r.Context(), content.NewAnswer{
		PostID:  req.PostID,
		UserID:  userID,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, answer)
}

type postIDRequest struct {
	PostID string `json:"postId"`
}

func (h *Handler) listAnswers(w http.ResponseWriter, r *http.Request) {
	var req postIDRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PostID) == "" {
		writeError(w, r, domain.InvalidInput("Post ID is required"))
		return
	}
	answers, err := h.Storage.GetAnswersByPostID(r.Context(), req.PostID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, answers)
}

type createReplyRequest struct {
	AnswerID string `json:"answerId"`
	UserID   string `json:"userId"`
	Content  string `json:"content"`
}

func (h *Handler) createReply(w http.ResponseWriter, r *http.Request) {
	var req createReplyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := h.Content.CreateReply(r.Context(), content.NewReply{
		AnswerID: req.AnswerID,
		UserID:   userID,
		Content:  req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, reply)
}

type answerIDRequest struct {
	AnswerID string `json:"answerId"`
}

func (h *Handler) listReplies(w http.ResponseWriter, r *http.Request) {
	var req answerIDRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.AnswerID) == "" {
		writeError(w, r, domain.InvalidInput("Answer ID is required"))
		return
	}
	replies, err := h.Storage.GetRepliesByAnswerID(r.Context(), req.AnswerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, replies)
}

// === Vote Handlers ===

type voteRequest struct {
	PostID   string          `json:"postId"`
	UserID   string          `json:"userId"`
	VoteType domain.VoteType `json:"voteType"`
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.Content.Vote(r.Context(), req.PostID, userID, req.VoteType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type currentVoteResponse struct {
	VoteType *domain.VoteType `json:"voteType"`
}

func (h *Handler) getVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	vote, err := h.Content.CurrentVote(r.Context(), req.PostID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, currentVoteResponse{VoteType: vote})
}

// caller возвращает id аутентифицированного пользователя.
// Если тело запроса тоже несет id, он должен совпадать.
func caller(r *http.Request, claimed string) (string, error) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		return "", err
	}
	if claimed != "" && claimed != userID {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}
