//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storeSuite
	pg *containers.PostgresContainer
	db *PostgresBucketStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "rate_limit_events"))
	s.db = NewPostgres(s.pg.DB)
	s.store = s.db
	s.now = time.Now().UTC().Truncate(time.Second)
}

func (s *PostgresStoreSuite) TestDeleteBefore() {
	limit := models.Limit{Requests: 5, Window: time.Minute}
	_, err := s.db.Allow(s.at(-time.Hour), "old", limit)
	s.Require().NoError(err)
	_, err = s.db.Allow(s.at(0), "new", limit)
	s.Require().NoError(err)

	deleted, err := s.db.DeleteBefore(context.Background(), s.now.Add(-30*time.Minute))

	s.Require().NoError(err)
	s.Equal(1, deleted)
	var remaining int
	s.Require().NoError(s.pg.QueryRow(context.Background(), `SELECT COUNT(*) FROM rate_limit_events`).Scan(&remaining))
	s.Equal(1, remaining)
}
