package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

//go:embed schema.sql
var schema string

// MySQL error numbers that mean "run the transaction again"
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// MySQLRepo implements AuctionDB, Directory, TokenStore and LeaseStore on MySQL.
//
// Every products row carries a version column. Transactions read rows without
// locking and write them back with "WHERE version = ?"; zero affected rows means
// another transaction committed first and the body is re-run.
type MySQLRepo struct {
	db          *sql.DB
	maxAttempts int
}

// NewMySQLRepo wraps an open database handle
func NewMySQLRepo(db *sql.DB, maxAttempts int) *MySQLRepo {
	return &MySQLRepo{db: db, maxAttempts: maxAttempts}
}

// OpenMySQL opens and pings a MySQL database. The DSN must set parseTime=true.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("repository: mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping mysql: %w", err)
	}
	return db, nil
}

// Migrate creates the tables the engine needs if they do not exist yet
func (r *MySQLRepo) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: migrate: %w", err)
		}
	}
	return nil
}

// RunTransaction runs fn inside a SQL transaction, retrying on version conflicts and deadlocks
func (r *MySQLRepo) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return retryTransaction(ctx, r.maxAttempts, func() error {
		sqlTx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("repository: begin transaction: %w", err)
		}

		tx := &mysqlTx{ctx: ctx, tx: sqlTx, versions: make(map[string]uint64)}
		if err := fn(tx); err != nil {
			_ = sqlTx.Rollback()
			return classifyMySQLError(err)
		}
		if err := sqlTx.Commit(); err != nil {
			return classifyMySQLError(fmt.Errorf("repository: commit: %w", err))
		}
		return nil
	})
}

func classifyMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", biddingerrors.ErrConflict, err)
	}
	return err
}

type mysqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	versions map[string]uint64
}

const productColumns = `id, title, sale_type, status, start_price, current_price, highest_bidder_id,
	winner_id, bidder_ids, end_time, seller_id, buyer_id, created_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p                      model.Product
		highest, winner, buyer sql.NullString
		endTime                sql.NullTime
		bidders                []byte
	)
	err := row.Scan(&p.ID, &p.Title, &p.SaleType, &p.Status, &p.StartPrice, &p.CurrentPrice,
		&highest, &winner, &bidders, &endTime, &p.SellerID, &buyer, &p.CreatedAt, &p.Version)
	if err != nil {
		return model.Product{}, err
	}
	p.HighestBidderID = highest.String
	p.WinnerID = winner.String
	p.BuyerID = buyer.String
	if endTime.Valid {
		p.EndTime = endTime.Time
	}
	if len(bidders) > 0 {
		if err := json.Unmarshal(bidders, &p.BidderIDs); err != nil {
			return model.Product{}, fmt.Errorf("decode bidder ids of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func bidderJSON(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func (tx *mysqlTx) GetProduct(productID string) (model.Product, error) {
	row := tx.tx.QueryRowContext(tx.ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	if _, seen := tx.versions[productID]; !seen {
		tx.versions[productID] = p.Version
	}
	return p, nil
}

func (tx *mysqlTx) UpdateProduct(p model.Product) error {
	version, seen := tx.versions[p.ID]
	if !seen {
		return fmt.Errorf("update product %s: product was not read in this transaction", p.ID)
	}
	bidders, err := bidderJSON(p.BidderIDs)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}

	res, err := tx.tx.ExecContext(tx.ctx, `
		UPDATE products SET title = ?, status = ?, start_price = ?, current_price = ?,
			highest_bidder_id = ?, winner_id = ?, bidder_ids = ?, end_time = ?, buyer_id = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		p.Title, p.Status, p.StartPrice, p.CurrentPrice,
		nullString(p.HighestBidderID), nullString(p.WinnerID), bidders, nullTime(p.EndTime), nullString(p.BuyerID),
		p.ID, version)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update product %s at version %d: %w", p.ID, version, biddingerrors.ErrConflict)
	}
	tx.versions[p.ID] = version + 1
	return nil
}

func (tx *mysqlTx) AddBid(b model.Bid) error {
	_, err := tx.tx.ExecContext(tx.ctx,
		`INSERT INTO bids (id, product_id, user_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.BidID, b.ProductID, b.UserID, b.Amount, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("add bid %s: %w", b.BidID, err)
	}
	return nil
}

func (tx *mysqlTx) DeleteBid(productID, bidID string) error {
	if _, err := tx.tx.ExecContext(tx.ctx, `DELETE FROM bids WHERE id = ? AND product_id = ?`, bidID, productID); err != nil {
		return fmt.Errorf("delete bid %s: %w", bidID, err)
	}
	return nil
}

func (tx *mysqlTx) BidsByAmountDesc(productID string) ([]model.Bid, error) {
	return queryBids(tx.ctx, tx.tx, productID)
}

func (tx *mysqlTx) CloseConversation(c model.ConversationClosure) error {
	participants, err := json.Marshal([]string{c.UserID})
	if err != nil {
		return fmt.Errorf("close conversation %s: %w", c.ConversationID, err)
	}
	_, err = tx.tx.ExecContext(tx.ctx, `
		INSERT INTO conversations (id, product_id, participants, status, last_message, last_message_at, last_message_sender_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), last_message = VALUES(last_message),
			last_message_at = VALUES(last_message_at), last_message_sender_id = VALUES(last_message_sender_id)`,
		c.ConversationID, c.ProductID, participants, model.ConversationClosed, c.Message, c.ClosedAt, c.SenderID)
	if err != nil {
		return fmt.Errorf("close conversation %s: %w", c.ConversationID, err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryBids(ctx context.Context, q querier, productID string) ([]model.Bid, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, user_id, amount, created_at FROM bids
		WHERE product_id = ?
		ORDER BY amount DESC, created_at ASC, id ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list bids for product %s: %w", productID, err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.ProductID, &b.UserID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid of product %s: %w", productID, err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func queryProducts(ctx context.Context, q querier, query string, args ...any) ([]model.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateProduct inserts a new listing at version 1
func (r *MySQLRepo) CreateProduct(ctx context.Context, p model.Product) error {
	bidders, err := bidderJSON(p.BidderIDs)
	if err != nil {
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (id, title, sale_type, status, start_price, current_price, highest_bidder_id,
			winner_id, bidder_ids, end_time, seller_id, buyer_id, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		p.ID, p.Title, p.SaleType, p.Status, p.StartPrice, p.CurrentPrice, nullString(p.HighestBidderID),
		nullString(p.WinnerID), bidders, nullTime(p.EndTime), p.SellerID, nullString(p.BuyerID), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	return nil
}

// GetProduct returns a product by id
func (r *MySQLRepo) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

// GetBidsByProduct returns the ledger of a product ordered by amount descending
func (r *MySQLRepo) GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error) {
	if _, err := r.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return queryBids(ctx, r.db, productID)
}

// GetProductsByBidder returns every product whose bidder set contains userID
func (r *MySQLRepo) GetProductsByBidder(ctx context.Context, userID string) ([]model.Product, error) {
	products, err := queryProducts(ctx, r.db,
		`SELECT `+productColumns+` FROM products WHERE JSON_CONTAINS(bidder_ids, JSON_QUOTE(?)) ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("get products for bidder %s: %w", userID, err)
	}
	return products, nil
}

// FindExpiredAuctions returns active auctions whose deadline is at or before now
func (r *MySQLRepo) FindExpiredAuctions(ctx context.Context, now time.Time) ([]model.Product, error) {
	products, err := queryProducts(ctx, r.db, `SELECT `+productColumns+` FROM products
		WHERE sale_type = ? AND status = ? AND end_time <= ? ORDER BY end_time`,
		model.SaleTypeAuction, model.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("find expired auctions: %w", err)
	}
	return products, nil
}

// IsAdmin reports admin membership
func (r *MySQLRepo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check admin %s: %w", userID, err)
	}
	return true, nil
}

const userColumns = `id, email, phone, status, created_at, last_sign_in_at`

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                   model.User
		phone               sql.NullString
		created, lastSignIn sql.NullTime
	)
	if err := row.Scan(&u.UserID, &u.Email, &phone, &u.Status, &created, &lastSignIn); err != nil {
		return model.User{}, err
	}
	u.Phone = phone.String
	u.CreatedAt = created.Time
	u.LastSignInAt = lastSignIn.Time
	return u, nil
}

// GetUser returns a user record
func (r *MySQLRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// ListUsers returns at most limit users ordered by id
func (r *MySQLRepo) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserStatus changes a user's standing
func (r *MySQLRepo) SetUserStatus(ctx context.Context, userID string, status model.UserStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, status, userID)
	if err != nil {
		return fmt.Errorf("set status for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status for user %s: %w", userID, err)
	}
	if n == 0 {
		// zero also means the status was already set
		if _, err := r.GetUser(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// BanPhone records a phone number on the ban list
func (r *MySQLRepo) BanPhone(ctx context.Context, phone, bannedUserID, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO banned_phone_numbers (phone, banned_user_id, reason, banned_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE banned_user_id = VALUES(banned_user_id), reason = VALUES(reason), banned_at = VALUES(banned_at)`,
		phone, bannedUserID, reason, at)
	if err != nil {
		return fmt.Errorf("ban phone of user %s: %w", bannedUserID, err)
	}
	return nil
}

// IsPhoneBanned reports whether phone is on the ban list
func (r *MySQLRepo) IsPhoneBanned(ctx context.Context, phone string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM banned_phone_numbers WHERE phone = ?`, phone).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check banned phone: %w", err)
	}
	return true, nil
}

// SaveIncident stores an incident report
func (r *MySQLRepo) SaveIncident(ctx context.Context, i model.Incident) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incidents (id, reported_user_id, product_id, product_title, bid_amount, reason, status, user_explanation, reported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.IncidentID, i.ReportedUserID, i.ProductID, i.ProductTitle, i.BidAmount, i.Reason, i.Status,
		nullString(i.UserExplanation), i.ReportedAt)
	if err != nil {
		return fmt.Errorf("save incident for user %s: %w", i.ReportedUserID, err)
	}
	return nil
}

// DeviceTokens returns the push tokens registered for userID
func (r *MySQLRepo) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM device_tokens WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens of %s: %w", userID, err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan device token of %s: %w", userID, err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteDeviceToken removes one push token of userID
func (r *MySQLRepo) DeleteDeviceToken(ctx context.Context, userID, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE user_id = ? AND token = ?`, userID, token); err != nil {
		return fmt.Errorf("delete device token of %s: %w", userID, err)
	}
	return nil
}

// RegisterDeviceToken adds a push token for userID
func (r *MySQLRepo) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO device_tokens (user_id, token) VALUES (?, ?)`, userID, token); err != nil {
		return fmt.Errorf("register device token of %s: %w", userID, err)
	}
	return nil
}

// AddAdmin grants admin membership
func (r *MySQLRepo) AddAdmin(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO admins (user_id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("add admin %s: %w", userID, err)
	}
	return nil
}

// UpsertUser creates or replaces a user record
func (r *MySQLRepo) UpsertUser(ctx context.Context, u model.User) error {
	if u.Status == "" {
		u.Status = model.UserActive
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, phone, status, created_at, last_sign_in_at) VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE email = VALUES(email), phone = VALUES(phone), status = VALUES(status),
			created_at = VALUES(created_at), last_sign_in_at = VALUES(last_sign_in_at)`,
		u.UserID, u.Email, nullString(u.Phone), u.Status, nullTime(u.CreatedAt), nullTime(u.LastSignInAt))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.UserID, err)
	}
	return nil
}

// AcquireLease takes over the lease when it is expired or already held by owner,
// and creates it when it does not exist.
func (r *MySQLRepo) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	expires := now.Add(ttl)
	res, err := r.db.ExecContext(ctx,
		`UPDATE leases SET owner = ?, expires_at = ? WHERE name = ? AND (expires_at <= ? OR owner = ?)`,
		owner, expires, name, now, owner)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if n > 0 {
		return true, nil
	}

	res, err = r.db.ExecContext(ctx, `INSERT IGNORE INTO leases (name, owner, expires_at) VALUES (?, ?, ?)`, name, owner, expires)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseLease frees the lease if owner still holds it
func (r *MySQLRepo) ReleaseLease(ctx context.Context, name, owner string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND owner = ?`, name, owner); err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}
