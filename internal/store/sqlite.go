package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3_stumble"

var registerDriver sync.Once

// ExpKey is the exponential selection key -ln(1-u)/(power+1). The candidate
// with the smallest key wins, so higher power sites are favoured without
// ever being guaranteed.
func ExpKey(power, u float64) float64 {
	return -math.Log(1-u) / (power + 1)
}

func drawKey(power float64) float64 {
	return ExpKey(power, rand.Float64())
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	registerDriver.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				// Not pure: every row gets its own uniform draw.
				return conn.RegisterFunc("draw_key", drawKey, false)
			},
		})
	})

	db, err := sql.Open(driverName, path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		hashword TEXT NOT NULL,
		total_points INTEGER NOT NULL DEFAULT 0,
		current_points INTEGER NOT NULL DEFAULT 0,
		approvals INTEGER NOT NULL DEFAULT 0,
		last_viewed_site_id INTEGER NOT NULL DEFAULT 0,
		rated_last_site INTEGER NOT NULL DEFAULT 0,
		flagged_last_site INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL UNIQUE CHECK (length(address) <= 3072),
		submitted_by INTEGER NOT NULL DEFAULT 0,
		likes INTEGER NOT NULL DEFAULT 0,
		dislikes INTEGER NOT NULL DEFAULT 0,
		views INTEGER NOT NULL DEFAULT 0,
		power REAL NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 0,
		protected INTEGER NOT NULL DEFAULT 0,
		mod_queued INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sites_enabled ON sites(enabled);
	CREATE INDEX IF NOT EXISTS idx_sites_mod_queued ON sites(mod_queued);

	CREATE TABLE IF NOT EXISTS site_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE CHECK (length(name) <= 768),
		enabled INTEGER NOT NULL DEFAULT 1,
		created_by INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bridge_site_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sites_id INTEGER NOT NULL,
		site_categories_id INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (sites_id) REFERENCES sites(id),
		FOREIGN KEY (site_categories_id) REFERENCES site_categories(id),
		UNIQUE(sites_id, site_categories_id)
	);

	CREATE INDEX IF NOT EXISTS idx_bridge_category ON bridge_site_categories(site_categories_id);

	CREATE TABLE IF NOT EXISTS user_site_views (
		users_id INTEGER NOT NULL,
		sites_id INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (users_id, sites_id)
	);

	CREATE TABLE IF NOT EXISTS site_ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		users_id INTEGER NOT NULL,
		sites_id INTEGER NOT NULL,
		rating TEXT NOT NULL DEFAULT '',
		points_at_rating INTEGER NOT NULL DEFAULT 0,
		fake INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ban_kinds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS user_bans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		users_id INTEGER NOT NULL,
		ban_kinds_id INTEGER NOT NULL,
		expiration_date DATETIME,
		reason TEXT,
		banned_by INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (ban_kinds_id) REFERENCES ban_kinds(id)
	);

	CREATE INDEX IF NOT EXISTS idx_user_bans_user ON user_bans(users_id);

	CREATE TABLE IF NOT EXISTS flag_kinds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS flag_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sites_id INTEGER NOT NULL,
		raised_by INTEGER NOT NULL,
		flag_kinds_id INTEGER NOT NULL,
		comment TEXT,
		queued INTEGER NOT NULL DEFAULT 1,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (sites_id) REFERENCES sites(id),
		FOREIGN KEY (flag_kinds_id) REFERENCES flag_kinds(id)
	);

	CREATE INDEX IF NOT EXISTS idx_flag_events_queued ON flag_events(queued);

	CREATE TABLE IF NOT EXISTS roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		users_id INTEGER NOT NULL,
		roles_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (users_id, roles_id),
		FOREIGN KEY (roles_id) REFERENCES roles(id)
	);

	CREATE TABLE IF NOT EXISTS moderation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		admin_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO ban_kinds (name) VALUES
		('submit site ban'), ('submit site shadow ban'),
		('tag site ban'), ('tag site shadow ban'),
		('rate site ban'), ('rate site shadow ban'),
		('flag site ban'), ('flag site shadow ban'),
		('total ban'), ('total shadow ban');

	INSERT OR IGNORE INTO flag_kinds (name, description) VALUES
		('broken', 'The address does not load'),
		('spam', 'Advertising or link farming'),
		('malicious', 'Malware, phishing or scams'),
		('explicit', 'Adult content'),
		('mistagged', 'Tags do not describe the site');

	INSERT OR IGNORE INTO roles (name) VALUES ('admin');
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back when fn fails.
// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Users

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, hashword, total_points, current_points, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Username, user.Hashword, user.TotalPoints, user.CurrentPoints, user.CreatedAt)
	if err != nil {
		return translate(err)
	}

	user.ID, err = res.LastInsertId()
	return err
}

const userColumns = `id, username, hashword, total_points, current_points, approvals,
	last_viewed_site_id, rated_last_site, flagged_last_site, created_at`

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// AddPoints moves both balances by delta, never below zero.
func (s *SQLiteStore) AddPoints(ctx context.Context, userID int64, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET total_points = MAX(0, total_points + ?), current_points = MAX(0, current_points + ?)
		WHERE id = ?
	`, delta, delta, userID)
	return err
}

// DeductPoints spends from current_points only if the balance covers amount.
func (s *SQLiteStore) DeductPoints(ctx context.Context, userID int64, amount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET current_points = current_points - ?
		WHERE id = ? AND current_points >= ?
	`, amount, userID, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

func (s *SQLiteStore) AdjustSubmitterPoints(ctx context.Context, siteID int64, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET total_points = MAX(0, total_points + ?), current_points = MAX(0, current_points + ?)
		WHERE id = (SELECT submitted_by FROM sites WHERE id = ?)
	`, delta, delta, siteID)
	return err
}

// ClaimRating flips rated_last_site for the given view. It reports false when
// the user already rated it or has since moved to another site.
func (s *SQLiteStore) ClaimRating(ctx context.Context, userID, siteID int64) (bool, error) {
	return s.claim(ctx, "rated_last_site", userID, siteID)
}

func (s *SQLiteStore) ClaimFlag(ctx context.Context, userID, siteID int64) (bool, error) {
	return s.claim(ctx, "flagged_last_site", userID, siteID)
}

func (s *SQLiteStore) claim(ctx context.Context, column string, userID, siteID int64) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE users SET %[1]s = 1
		WHERE id = ? AND last_viewed_site_id = ? AND %[1]s = 0
	`, column)

	res, err := s.db.ExecContext(ctx, query, userID, siteID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Bans

func (s *SQLiteStore) ListActiveBans(ctx context.Context, userID int64, now time.Time) ([]*Ban, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.users_id, b.ban_kinds_id, k.name, b.expiration_date, b.reason, b.banned_by
		FROM user_bans b
		INNER JOIN ban_kinds k ON k.id = b.ban_kinds_id
		WHERE b.users_id = ? AND (b.expiration_date IS NULL OR b.expiration_date > ?)
		ORDER BY b.id
	`, userID, sqliteTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []*Ban
	for rows.Next() {
		var ban Ban
		var expiration sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(&ban.ID, &ban.UserID, &ban.KindID, &ban.Name, &expiration, &reason, &ban.BannedBy); err != nil {
			return nil, err
		}
		if expiration.Valid {
			ban.Expiration = &expiration.Time
		}
		ban.Reason = reason.String
		bans = append(bans, &ban)
	}

	return bans, rows.Err()
}

func (s *SQLiteStore) GetBanKind(ctx context.Context, id int64) (*BanKind, error) {
	var kind BanKind
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM ban_kinds WHERE id = ?`, id).
		Scan(&kind.ID, &kind.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &kind, nil
}

func (s *SQLiteStore) CreateBan(ctx context.Context, ban *Ban) error {
	var expiration any
	if ban.Expiration != nil {
		expiration = sqliteTime(*ban.Expiration)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_bans (users_id, ban_kinds_id, expiration_date, reason, banned_by)
		VALUES (?, ?, ?, ?, ?)
	`, ban.UserID, ban.KindID, expiration, nullString(ban.Reason), ban.BannedBy)
	if err != nil {
		return err
	}

	ban.ID, err = res.LastInsertId()
	return err
}

// Roles

func (s *SQLiteStore) GetRole(ctx context.Context, id int64) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE id = ?`, id).
		Scan(&role.ID, &role.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *SQLiteStore) ListUserRoles(ctx context.Context, userID int64) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name FROM user_roles ur
		INNER JOIN roles r ON r.id = ur.roles_id
		WHERE ur.users_id = ?
		ORDER BY r.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}

	return roles, rows.Err()
}

func (s *SQLiteStore) GrantRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_roles (users_id, roles_id) VALUES (?, ?)`, userID, roleID)
	return translate(err)
}

func (s *SQLiteStore) RevokeRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE users_id = ? AND roles_id = ?`, userID, roleID)
	return err
}

// Sites

// CreateSite inserts the site and applies its initial tags in one transaction.
func (s *SQLiteStore) CreateSite(ctx context.Context, site *Site, tags []string, weight int) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sites (address, submitted_by, power, enabled, protected, mod_queued, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, site.Address, site.SubmittedBy, site.Power, boolToInt(site.Enabled),
			boolToInt(site.Protected), boolToInt(site.ModQueued), site.CreatedAt)
		if err != nil {
			return translate(err)
		}
		if site.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for _, tag := range tags {
			if _, err := applyTag(ctx, tx, site.ID, tag, site.SubmittedBy, weight); err != nil {
				return err
			}
		}
		return nil
	})
}

const siteColumns = `sites.id, sites.address, sites.submitted_by, sites.likes, sites.dislikes,
	sites.views, sites.power, sites.enabled, sites.protected, sites.mod_queued, sites.created_at`

func (s *SQLiteStore) GetSite(ctx context.Context, id int64) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)

	site, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return site, err
}

// DrawSite returns one enabled site ordered by draw_key(power), or nil when
// nothing qualifies. With tag filters only bridges past the anti-spam
// threshold (count >= 3 or score >= 1000) on enabled categories count.
func (s *SQLiteStore) DrawSite(ctx context.Context, filter TagFilter) (*Site, error) {
	query, args := drawQuery(filter)

	site, err := scanSite(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return site, err
}

func drawQuery(filter TagFilter) (string, []any) {
	if filter.Empty() {
		return `
			SELECT ` + siteColumns + ` FROM sites
			WHERE sites.enabled = 1
			ORDER BY draw_key(CAST(sites.power AS REAL))
			LIMIT 1
		`, nil
	}

	var having []string
	var args []any

	if names := distinct(filter.And); len(names) > 0 {
		having = append(having, fmt.Sprintf("SUM(c.name IN (%s)) = %d", placeholders(len(names)), len(names)))
		args = appendStrings(args, names)
	}
	if names := distinct(filter.Or); len(names) > 0 {
		having = append(having, fmt.Sprintf("SUM(c.name IN (%s)) > 0", placeholders(len(names))))
		args = appendStrings(args, names)
	}
	if names := distinct(filter.Not); len(names) > 0 {
		having = append(having, fmt.Sprintf("SUM(c.name IN (%s)) = 0", placeholders(len(names))))
		args = appendStrings(args, names)
	}

	return `
		SELECT ` + siteColumns + ` FROM sites
		INNER JOIN bridge_site_categories b ON b.sites_id = sites.id
		INNER JOIN site_categories c ON c.id = b.site_categories_id
			AND c.enabled = 1
			AND (b.count >= 3 OR b.score >= 1000)
		WHERE sites.enabled = 1
		GROUP BY sites.id
		HAVING ` + strings.Join(having, " AND ") + `
		ORDER BY draw_key(CAST(sites.power AS REAL))
		LIMIT 1
	`, args
}

func (s *SQLiteStore) SetSiteState(ctx context.Context, id int64, enabled, modQueued bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET enabled = ?, mod_queued = ? WHERE id = ?`,
		boolToInt(enabled), boolToInt(modQueued), id)
	return err
}

func (s *SQLiteStore) SetSiteEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	return err
}

func (s *SQLiteStore) SetSiteProtected(ctx context.Context, id int64, protected bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET protected = ? WHERE id = ?`, boolToInt(protected), id)
	return err
}

// ApproveSubmission publishes a queued site and credits its submitter with
// an approval.
func (s *SQLiteStore) ApproveSubmission(ctx context.Context, siteID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE sites SET enabled = 1, mod_queued = 0 WHERE id = ?`, siteID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE users SET approvals = approvals + 1
			WHERE id = (SELECT submitted_by FROM sites WHERE id = ?)
		`, siteID)
		return err
	})
}

// Categories

func (s *SQLiteStore) ApplyTag(ctx context.Context, siteID int64, name string, createdBy int64, weight int) (*Bridge, error) {
	var bridge *Bridge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		bridge, err = applyTag(ctx, tx, siteID, name, createdBy, weight)
		return err
	})
	return bridge, err
}

// applyTag creates the category on first use and bumps the bridge counters.
func applyTag(ctx context.Context, tx *sql.Tx, siteID int64, name string, createdBy int64, weight int) (*Bridge, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO site_categories (name, created_by) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, createdBy); err != nil {
		return nil, err
	}

	var bridge Bridge
	err := tx.QueryRowContext(ctx, `
		INSERT INTO bridge_site_categories (sites_id, site_categories_id, count, score)
		SELECT ?, id, 1, ? FROM site_categories WHERE name = ?
		ON CONFLICT(sites_id, site_categories_id)
		DO UPDATE SET count = count + 1, score = score + excluded.score
		RETURNING id, sites_id, site_categories_id, count, score
	`, siteID, weight, name).Scan(&bridge.ID, &bridge.SiteID, &bridge.CategoryID, &bridge.Count, &bridge.Score)
	if err != nil {
		return nil, err
	}

	return &bridge, nil
}

func (s *SQLiteStore) SiteTags(ctx context.Context, siteID int64, eligibleOnly bool) ([]string, error) {
	query := `
		SELECT c.name FROM bridge_site_categories b
		INNER JOIN site_categories c ON c.id = b.site_categories_id
		WHERE b.sites_id = ?
	`
	if eligibleOnly {
		query += ` AND c.enabled = 1 AND (b.count >= 3 OR b.score >= 1000)`
	}
	query += ` ORDER BY b.count DESC, c.name`

	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// SiteBridges lists every bridge of a site with its category name.
func (s *SQLiteStore) SiteBridges(ctx context.Context, siteID int64) ([]*Bridge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.sites_id, b.site_categories_id, c.name, b.count, b.score
		FROM bridge_site_categories b
		INNER JOIN site_categories c ON c.id = b.site_categories_id
		WHERE b.sites_id = ?
		ORDER BY b.count DESC, c.name
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bridges []*Bridge
	for rows.Next() {
		var b Bridge
		if err := rows.Scan(&b.ID, &b.SiteID, &b.CategoryID, &b.Name, &b.Count, &b.Score); err != nil {
			return nil, err
		}
		bridges = append(bridges, &b)
	}

	return bridges, rows.Err()
}

func (s *SQLiteStore) RemoveBridge(ctx context.Context, bridgeID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bridge_site_categories WHERE id = ?`, bridgeID)
	return affectedOne(res, err)
}

func (s *SQLiteStore) DisableCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE site_categories SET enabled = 0 WHERE id = ?`, id)
	return affectedOne(res, err)
}

// TagAutocomplete ranks enabled categories starting with prefix by the
// summed score of their bridges.
func (s *SQLiteStore) TagAutocomplete(ctx context.Context, prefix string, limit int) ([]TagSuggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, COALESCE(SUM(b.score), 0) AS total
		FROM site_categories c
		LEFT JOIN bridge_site_categories b ON b.site_categories_id = c.id
		WHERE c.enabled = 1 AND c.name LIKE ? ESCAPE '\'
		GROUP BY c.id
		ORDER BY total DESC, c.name
		LIMIT ?
	`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagSuggestion
	for rows.Next() {
		var sug TagSuggestion
		if err := rows.Scan(&sug.Name, &sug.Score); err != nil {
			return nil, err
		}
		out = append(out, sug)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) RandomTags(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM site_categories WHERE enabled = 1 ORDER BY RANDOM() LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Views

func (s *SQLiteStore) GetSiteViews(ctx context.Context, userID, siteID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM user_site_views WHERE users_id = ? AND sites_id = ?
	`, userID, siteID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// RecordSiteView counts a view and moves the viewer's last viewed site in one
// transaction.
func (s *SQLiteStore) RecordSiteView(ctx context.Context, userID, siteID int64, points int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := markViewed(ctx, tx, userID, siteID); err != nil {
			return err
		}
		return countView(ctx, tx, userID, siteID, points)
	})
}

// MarkViewed makes siteID the user's last viewed site and reopens it for one
// rating and one flag. Anonymous viewers have no row to move.
func (s *SQLiteStore) MarkViewed(ctx context.Context, userID, siteID int64) error {
	return markViewed(ctx, s.db, userID, siteID)
}

// CountSiteView bumps the view counters and credits the view's points.
func (s *SQLiteStore) CountSiteView(ctx context.Context, userID, siteID int64, points int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return countView(ctx, tx, userID, siteID, points)
	})
}

func markViewed(ctx context.Context, tx execer, userID, siteID int64) error {
	if userID == AnonymousUserID {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET last_viewed_site_id = ?, rated_last_site = 0, flagged_last_site = 0
		WHERE id = ?
	`, siteID, userID)
	return err
}

func countView(ctx context.Context, tx *sql.Tx, userID, siteID int64, points int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE sites SET views = views + 1 WHERE id = ?`, siteID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_site_views (users_id, sites_id, count) VALUES (?, ?, 1)
		ON CONFLICT(users_id, sites_id) DO UPDATE SET count = count + 1
	`, userID, siteID); err != nil {
		return err
	}

	if userID == AnonymousUserID || points == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET total_points = total_points + ?, current_points = current_points + ?
		WHERE id = ?
	`, points, points, userID)
	return err
}

// Ratings

func (s *SQLiteStore) AddRating(ctx context.Context, userID, siteID int64, rating Rating, weight int) error {
	column := "likes"
	if rating == RatingDislike {
		column = "dislikes"
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO site_ratings (users_id, sites_id, rating, points_at_rating) VALUES (?, ?, ?, ?)
		`, userID, siteID, string(rating), weight); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE sites SET %[1]s = %[1]s + 1 WHERE id = ?`, column), siteID)
		return err
	})
}

// AddFakeRating writes the decoy record for a shadow banned rater. The
// rating value is deliberately left empty.
func (s *SQLiteStore) AddFakeRating(ctx context.Context, userID, siteID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_ratings (users_id, sites_id, fake) VALUES (?, ?, 1)
	`, userID, siteID)
	return err
}

// Flags

func (s *SQLiteStore) ListFlagKinds(ctx context.Context) ([]*FlagKind, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, enabled FROM flag_kinds WHERE enabled = 1 ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kinds []*FlagKind
	for rows.Next() {
		var kind FlagKind
		if err := rows.Scan(&kind.ID, &kind.Name, &kind.Description, &kind.Enabled); err != nil {
			return nil, err
		}
		kinds = append(kinds, &kind)
	}

	return kinds, rows.Err()
}

func (s *SQLiteStore) GetFlagKind(ctx context.Context, id int64) (*FlagKind, error) {
	var kind FlagKind
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, enabled FROM flag_kinds WHERE id = ?
	`, id).Scan(&kind.ID, &kind.Name, &kind.Description, &kind.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &kind, nil
}

func (s *SQLiteStore) CreateFlagEvent(ctx context.Context, flag *FlagEvent) error {
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flag_events (sites_id, raised_by, flag_kinds_id, comment, queued, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, flag.SiteID, flag.RaisedBy, flag.KindID, nullString(flag.Comment),
		boolToInt(flag.Queued), boolToInt(flag.Enabled), flag.CreatedAt)
	if err != nil {
		return err
	}

	flag.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetFlagEvent(ctx context.Context, id int64) (*FlagEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sites_id, raised_by, flag_kinds_id, comment, queued, enabled, created_at
		FROM flag_events WHERE id = ?
	`, id)

	flag, err := scanFlag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return flag, err
}

func (s *SQLiteStore) SetFlagState(ctx context.Context, id int64, queued, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE flag_events SET queued = ?, enabled = ? WHERE id = ?`,
		boolToInt(queued), boolToInt(enabled), id)
	return err
}

// Moderation queues

func (s *SQLiteStore) SiteModQueue(ctx context.Context, page Page) ([]*QueuedSite, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE mod_queued = 1`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+siteColumns+` FROM sites WHERE mod_queued = 1
		ORDER BY created_at, id
		LIMIT ? OFFSET ?
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}

	var queue []*QueuedSite
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		queue = append(queue, &QueuedSite{Site: *site})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, q := range queue {
		if q.Tags, err = s.SiteTags(ctx, q.ID, false); err != nil {
			return nil, 0, err
		}
	}

	return queue, total, nil
}

func (s *SQLiteStore) FlagModQueue(ctx context.Context, page Page) ([]*QueuedFlag, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flag_events WHERE queued = 1`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.sites_id, f.raised_by, f.flag_kinds_id, f.comment, f.queued, f.enabled, f.created_at,
			s.address, k.name
		FROM flag_events f
		INNER JOIN sites s ON s.id = f.sites_id
		INNER JOIN flag_kinds k ON k.id = f.flag_kinds_id
		WHERE f.queued = 1
		ORDER BY f.created_at, f.id
		LIMIT ? OFFSET ?
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var queue []*QueuedFlag
	for rows.Next() {
		var q QueuedFlag
		var comment sql.NullString
		if err := rows.Scan(&q.ID, &q.SiteID, &q.RaisedBy, &q.KindID, &comment, &q.Queued, &q.Enabled,
			&q.CreatedAt, &q.Address, &q.KindName); err != nil {
			return nil, 0, err
		}
		q.Comment = comment.String
		queue = append(queue, &q)
	}

	return queue, total, rows.Err()
}

func (s *SQLiteStore) RecordModeration(ctx context.Context, adminID int64, action string, targetID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_events (admin_id, action, target_id) VALUES (?, ?, ?)
	`, adminID, action, targetID)
	return err
}

// Leaderboards

var siteRankOrder = map[Ranking]string{
	RankViews:         `views DESC, id`,
	RankLikes:         `likes DESC, id`,
	RankControversial: `min(likes, dislikes) DESC, likes + dislikes DESC, id`,
}

// TopSites ranks live sites. The controversial board only holds sites with
// both likes and dislikes.
func (s *SQLiteStore) TopSites(ctx context.Context, by Ranking, page Page) ([]*RankedSite, int, error) {
	order, ok := siteRankOrder[by]
	if !ok {
		return nil, 0, fmt.Errorf("unknown site ranking %q", by)
	}
	where := `enabled = 1`
	if by == RankControversial {
		where += ` AND likes > 0 AND dislikes > 0`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE `+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, likes, dislikes, views FROM sites
		WHERE `+where+`
		ORDER BY `+order+`
		LIMIT ? OFFSET ?
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*RankedSite
	for rows.Next() {
		var r RankedSite
		if err := rows.Scan(&r.Address, &r.Likes, &r.Dislikes, &r.Views); err != nil {
			return nil, 0, err
		}
		out = append(out, &r)
	}
	return out, total, rows.Err()
}

const tagUseJoin = `
	FROM site_categories c
	INNER JOIN bridge_site_categories b ON b.site_categories_id = c.id
	INNER JOIN sites s ON s.id = b.sites_id AND s.enabled = 1
	WHERE c.enabled = 1`

// TopTags ranks enabled tags by the number of live sites carrying them. The
// random board ignores the page offset.
func (s *SQLiteStore) TopTags(ctx context.Context, by Ranking, page Page) ([]*RankedTag, int, error) {
	order := `uses DESC, c.name`
	switch by {
	case RankMostUsed:
	case RankRandom:
		order = `RANDOM()`
		page.Offset = 0
	default:
		return nil, 0, fmt.Errorf("unknown tag ranking %q", by)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT c.id)`+tagUseJoin).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, COUNT(*) AS uses`+tagUseJoin+`
		GROUP BY c.id
		ORDER BY `+order+`
		LIMIT ? OFFSET ?
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*RankedTag
	for rows.Next() {
		var r RankedTag
		if err := rows.Scan(&r.Name, &r.Count); err != nil {
			return nil, 0, err
		}
		out = append(out, &r)
	}
	return out, total, rows.Err()
}

// TopUsers ranks accounts by total points, or by live sites submitted. The
// site adds board only holds users with at least one.
func (s *SQLiteStore) TopUsers(ctx context.Context, by Ranking, page Page) ([]*RankedUser, int, error) {
	var where, order string
	switch by {
	case RankPoints:
		where, order = `1 = 1`, `total_points DESC, id`
	case RankSiteAdds:
		where, order = `site_adds > 0`, `site_adds DESC, total_points DESC, id`
	default:
		return nil, 0, fmt.Errorf("unknown user ranking %q", by)
	}

	const ranked = `
		WITH ranked AS (
			SELECT u.id, u.username, u.total_points,
				(SELECT COUNT(*) FROM sites s WHERE s.submitted_by = u.id AND s.enabled = 1) AS site_adds
			FROM users u
		)`

	var total int
	if err := s.db.QueryRowContext(ctx, ranked+` SELECT COUNT(*) FROM ranked WHERE `+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, ranked+`
		SELECT username, total_points, site_adds FROM ranked
		WHERE `+where+`
		ORDER BY `+order+`
		LIMIT ? OFFSET ?
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*RankedUser
	for rows.Next() {
		var r RankedUser
		if err := rows.Scan(&r.Username, &r.Points, &r.SiteAdds); err != nil {
			return nil, 0, err
		}
		out = append(out, &r)
	}
	return out, total, rows.Err()
}

// Helpers

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqliteTime formats t the way DATETIME columns are compared.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// affectedOne maps an update that matched nothing to ErrNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanUser(row scanner) (*User, error) {
	var user User
	var rated, flagged int

	err := row.Scan(&user.ID, &user.Username, &user.Hashword, &user.TotalPoints, &user.CurrentPoints,
		&user.Approvals, &user.LastViewedSiteID, &rated, &flagged, &user.CreatedAt)
	if err != nil {
		return nil, err
	}

	user.RatedLastSite = rated == 1
	user.FlaggedLastSite = flagged == 1
	return &user, nil
}

func scanSite(row scanner) (*Site, error) {
	var site Site
	var enabled, protected, modQueued int

	err := row.Scan(&site.ID, &site.Address, &site.SubmittedBy, &site.Likes, &site.Dislikes,
		&site.Views, &site.Power, &enabled, &protected, &modQueued, &site.CreatedAt)
	if err != nil {
		return nil, err
	}

	site.Enabled = enabled == 1
	site.Protected = protected == 1
	site.ModQueued = modQueued == 1
	return &site, nil
}

func scanFlag(row scanner) (*FlagEvent, error) {
	var flag FlagEvent
	var comment sql.NullString
	var queued, enabled int

	err := row.Scan(&flag.ID, &flag.SiteID, &flag.RaisedBy, &flag.KindID, &comment, &queued, &enabled, &flag.CreatedAt)
	if err != nil {
		return nil, err
	}

	flag.Comment = comment.String
	flag.Queued = queued == 1
	flag.Enabled = enabled == 1
	return &flag, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
