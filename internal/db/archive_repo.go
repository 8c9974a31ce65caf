package db

import (
	"context"

	"github.com/google/uuid"

	"alrt/internal/types"
)

// ArchiveRepository provides append-only data access for the posts and
// stories archives. Inserts are guarded by the (account, content-id) unique
// constraints: a duplicate sighting is a silent no-op, which is what makes
// redundant worker deliveries safe.
type ArchiveRepository struct {
	db DBTX
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(db DBTX) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// InsertPostIfNew archives a post unless its content ID has been seen before
// for this account. Returns true when a row was actually inserted.
func (r *ArchiveRepository) InsertPostIfNew(ctx context.Context, p *types.Post) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO posts (id, account_id, instagram_post_id, url, thumbnail_url,
			caption, likes_count, comments_count, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, instagram_post_id) DO NOTHING`,
		p.ID, p.AccountID, p.InstagramPostID, p.URL, p.ThumbnailURL,
		p.Caption, p.LikesCount, p.CommentsCount, p.PostedAt)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to archive post", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertStoryIfNew archives a story unless its content ID has been seen
// before for this account. Returns true when a row was actually inserted.
func (r *ArchiveRepository) InsertStoryIfNew(ctx context.Context, s *types.Story) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO stories (id, account_id, instagram_story_id, media_url,
			mirrored_url, posted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, instagram_story_id) DO NOTHING`,
		s.ID, s.AccountID, s.InstagramStoryID, s.MediaURL,
		s.MirroredURL, s.PostedAt, s.ExpiresAt)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to archive story", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetStoryMirroredURL records the durable copy of a story thumbnail.
func (r *ArchiveRepository) SetStoryMirroredURL(ctx context.Context, storyID, mirroredURL string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE stories SET mirrored_url = $2 WHERE id = $1`, storyID, mirroredURL)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record mirrored thumbnail", err)
	}
	return nil
}

// CountPostsByAccount returns the number of archived posts for an account.
func (r *ArchiveRepository) CountPostsByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM posts WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count posts", err)
	}
	return count, nil
}
