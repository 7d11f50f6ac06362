package content

import (
	"context"
	"fmt"

	"github.com/UkralStul/oraculum-service/internal/domain"
)

// Vote ставит, меняет или снимает голос пользователя за пост.
// Повторный голос в том же направлении снимает голос (UserVote == nil).
func (s *Service) Vote(ctx context.Context, postID, userID string, vote domain.VoteType) (*domain.VoteResult, error) {
	if blank(postID) || blank(userID) {
		return nil, domain.InvalidInput("Missing fields")
	}
	if !vote.Valid() {
		return nil, domain.InvalidInput(fmt.Sprintf("unknown vote direction %q", vote))
	}

	res, err := s.repo.ApplyVote(ctx, postID, userID, vote)
	if err != nil {
		return nil, persistenceError("vote", err)
	}
	return res, nil
}

// CurrentVote возвращает голос пользователя или nil.
func (s *Service) CurrentVote(ctx context.Context, postID, userID string) (*domain.VoteType, error) {
	if blank(postID) || blank(userID) {
		return nil, domain.InvalidInput("Missing fields")
	}
	return s.repo.GetVote(ctx, postID, userID)
}
