package pg

import (
	"context"
	"database/sql"
	"errors"

	"echomap.org/internal/role"
)

var _ role.Lookup = (*Store)(nil)

// RoleRow returns the user's role row, unioning the core team and community
// contributor tables. Core membership wins when a user appears in both. At
// most one row is returned; absence means the user holds no role.
func (s *Store) RoleRow(ctx context.Context, userID string) (role.Row, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select role_type, level, is_core, status
		from (
			select 'core'::text as role_type,
			       null::int    as level,
			       true         as is_core,
			       null::text   as status,
			       0            as priority
			from core_team
			where user_id = $1
			union all
			select 'moderator', cc.level, false, cc.status::text, 1
			from community_contributors cc
			where cc.user_id = $1
		) assignments
		order by priority
		limit 1
	`, userID)

	var (
		roleType sql.NullString
		level    sql.NullInt64
		isCore   bool
		status   sql.NullString
	)
	err := row.Scan(&roleType, &level, &isCore, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return role.Row{}, false, nil
	}
	if err != nil {
		return role.Row{}, false, err
	}

	out := role.Row{IsCore: isCore}
	if roleType.Valid {
		v := roleType.String
		out.RoleType = &v
	}
	if level.Valid {
		v := int(level.Int64)
		out.Level = &v
	}
	if status.Valid {
		v := status.String
		out.Status = &v
	}
	return out, true, nil
}
