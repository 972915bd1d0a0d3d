package repository

import "github.com/jmoiron/sqlx"

// pick runs statements on the caller's transaction when one is supplied.
func pick(db *sqlx.DB, q sqlx.ExtContext) sqlx.ExtContext {
	if q != nil {
		return q
	}
	return db
}
