package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/database"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

const defaultConnection = "default"

var errDatabaseUnavailable = errors.New("database unavailable")

// Post is a row of the posts table.
type Post struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type createPostRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
}

type postsHandler struct {
	registry *database.Registry
	logger   *zap.Logger
}

func newPostsHandler(registry *database.Registry, logger *zap.Logger) *postsHandler {
	return &postsHandler{registry: registry, logger: logger}
}

func (h *postsHandler) pool() (*pgxpool.Pool, error) {
	conn, err := h.registry.Get(defaultConnection)
	if err != nil {
		return nil, errDatabaseUnavailable
	}
	pool := conn.Pool()
	if pool == nil {
		return nil, errDatabaseUnavailable
	}
	return pool, nil
}

// migrate creates the posts table. Without a database there is nothing to do.
func (h *postsHandler) migrate(ctx context.Context) error {
	pool, err := h.pool()
	if errors.Is(err, errDatabaseUnavailable) {
		return nil
	}
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

// list reads the latest posts inside a read-only transaction.
func (h *postsHandler) list(c *gin.Context) {
	pool, err := h.pool()
	if err != nil {
		h.unavailable(c)
		return
	}
	ctx := c.Request.Context()

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		h.fail(c, fmt.Errorf("begin: %w", err))
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	rows, err := tx.Query(ctx, `SELECT id, title, body, created_at FROM posts ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		h.fail(c, fmt.Errorf("list posts: %w", err))
		return
	}
	posts, err := pgx.CollectRows(rows, pgx.RowToStructByName[Post])
	if err != nil {
		h.fail(c, fmt.Errorf("scan posts: %w", err))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.fail(c, fmt.Errorf("commit: %w", err))
		return
	}

	tracing.StartTimer(ctx, "Render File: posts/index")
	c.JSON(http.StatusOK, gin.H{"posts": posts})
	tracing.StopTimer(ctx, "Render File: posts/index")
}

func (h *postsHandler) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	pool, err := h.pool()
	if err != nil {
		h.unavailable(c)
		return
	}

	rows, err := pool.Query(c.Request.Context(),
		`SELECT id, title, body, created_at FROM posts WHERE id = $1`, id)
	if err != nil {
		h.fail(c, fmt.Errorf("get post: %w", err))
		return
	}
	post, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Post])
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.fail(c, fmt.Errorf("scan post: %w", err))
		return
	}
	c.JSON(http.StatusOK, post)
}

// create inserts a post inside a transaction.
func (h *postsHandler) create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pool, err := h.pool()
	if err != nil {
		h.unavailable(c)
		return
	}

	post := Post{ID: uuid.New(), Title: req.Title, Body: req.Body}
	err = pgx.BeginFunc(c.Request.Context(), pool, func(tx pgx.Tx) error {
		return tx.QueryRow(c.Request.Context(),
			`INSERT INTO posts (id, title, body) VALUES ($1, $2, $3) RETURNING created_at`,
			post.ID, post.Title, post.Body,
		).Scan(&post.CreatedAt)
	})
	if err != nil {
		h.fail(c, fmt.Errorf("create post: %w", err))
		return
	}

	h.logger.Info("Post created", zap.String("id", post.ID.String()))
	c.JSON(http.StatusCreated, post)
}

func (h *postsHandler) unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": errDatabaseUnavailable.Error()})
}

// fail records err for the recovery middleware and answers 500.
func (h *postsHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
