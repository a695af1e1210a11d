package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lfglabs-dev/unbound.md/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			capabilities TEXT,
			contact TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS deals (
			deal_id TEXT PRIMARY KEY,
			proposer_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			service TEXT NOT NULL,
			terms TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status)`,
		`CREATE INDEX IF NOT EXISTS idx_deals_proposer ON deals(proposer_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS deal_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			deal_id TEXT NOT NULL,
			from_agent TEXT NOT NULL,
			action TEXT NOT NULL,
			content TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (deal_id) REFERENCES deals(deal_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deal_messages_deal ON deal_messages(deal_id, id)`,
		`CREATE TABLE IF NOT EXISTS proofs (
			proof_id TEXT PRIMARY KEY,
			deal_id TEXT,
			request_id TEXT,
			operator_id TEXT NOT NULL,
			status TEXT NOT NULL,
			plan_hash TEXT NOT NULL,
			plan_text TEXT,
			evidence TEXT,
			evidence_hash TEXT,
			deadline DATETIME NOT NULL,
			challenge_window_ends DATETIME,
			challenges TEXT,
			verified_by TEXT,
			verified_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proofs_deal ON proofs(deal_id)`,
		`CREATE INDEX IF NOT EXISTS idx_proofs_request ON proofs(request_id)`,
		`CREATE TABLE IF NOT EXISTS pricing_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service TEXT NOT NULL,
			suggested_price REAL NOT NULL,
			final_price REAL,
			agent_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			counter_price REAL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pricing_history_service ON pricing_history(service)`,
		`CREATE INDEX IF NOT EXISTS idx_pricing_history_agent ON pricing_history(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pricing_history_created ON pricing_history(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			webhook_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			url TEXT NOT NULL,
			events TEXT NOT NULL,
			secret TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_agent ON webhooks(agent_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---- agents ----

// UpsertAgent creates or refreshes an agent registration.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	caps, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	contact, err := json.Marshal(agent.Contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (agent_id, name, description, capabilities, contact, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET name = excluded.name, description = excluded.description,
		 capabilities = excluded.capabilities, contact = excluded.contact`,
		agent.AgentID, agent.Name, agent.Description, string(caps), string(contact), agent.CreatedAt.UTC())
	return err
}

// GetAgent returns the agent or nil when unknown.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, description, capabilities, contact, created_at FROM agents WHERE agent_id = ?`,
		agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents returns registered agents, optionally filtered by capability
// containment on the JSON-encoded capability array.
func (s *SQLiteStore) ListAgents(ctx context.Context, capability string) ([]domain.Agent, error) {
	query := `SELECT agent_id, name, description, capabilities, contact, created_at FROM agents`
	args := []interface{}{}
	if capability != "" {
		query += ` WHERE capabilities LIKE ?`
		args = append(args, `%"`+capability+`"%`)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var description sql.NullString
	var caps, contact sql.NullString
	if err := row.Scan(&agent.AgentID, &agent.Name, &description, &caps, &contact, &agent.CreatedAt); err != nil {
		return nil, err
	}
	agent.Description = description.String
	if caps.Valid && caps.String != "" {
		if err := json.Unmarshal([]byte(caps.String), &agent.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
		}
	}
	if contact.Valid && contact.String != "" {
		if err := json.Unmarshal([]byte(contact.String), &agent.Contact); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
		}
	}
	return &agent, nil
}

// ---- deals ----

// CreateDeal persists a new deal.
func (s *SQLiteStore) CreateDeal(ctx context.Context, deal *domain.Deal) error {
	terms, err := json.Marshal(deal.Terms)
	if err != nil {
		return fmt.Errorf("failed to marshal terms: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deals (deal_id, proposer_id, target_id, service, terms, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		deal.DealID, deal.ProposerID, deal.TargetID, string(deal.Service), string(terms),
		string(deal.Status), deal.CreatedAt.UTC(), deal.UpdatedAt.UTC())
	return err
}

// GetDeal returns the deal or nil when unknown.
func (s *SQLiteStore) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT deal_id, proposer_id, target_id, service, terms, status, created_at, updated_at
		 FROM deals WHERE deal_id = ?`, dealID)
	deal, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// ListDeals returns deals matching the filter, newest first.
func (s *SQLiteStore) ListDeals(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	query := `SELECT deal_id, proposer_id, target_id, service, terms, status, created_at, updated_at FROM deals`
	var conds []string
	var args []interface{}
	if filter.AgentID != "" {
		conds = append(conds, `proposer_id = ?`)
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *deal)
	}
	return deals, rows.Err()
}

func scanDeal(row rowScanner) (*domain.Deal, error) {
	var deal domain.Deal
	var service, terms, status string
	if err := row.Scan(&deal.DealID, &deal.ProposerID, &deal.TargetID, &service, &terms, &status,
		&deal.CreatedAt, &deal.UpdatedAt); err != nil {
		return nil, err
	}
	deal.Service = domain.ServiceKind(service)
	deal.Status = domain.DealStatus(status)
	if err := json.Unmarshal([]byte(terms), &deal.Terms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal terms: %w", err)
	}
	return &deal, nil
}

// UpdateDealStatus moves the deal to the target status as a single conditional
// update. It reports false when the deal was not in any of the expected source
// statuses, i.e. a concurrent transition won.
func (s *SQLiteStore) UpdateDealStatus(ctx context.Context, dealID string, from []domain.DealStatus, to domain.DealStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("no source statuses given")
	}
	placeholders := strings.Repeat("?, ", len(from)-1) + "?"
	args := []interface{}{string(to), time.Now().UTC(), dealID}
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET status = ?, updated_at = ? WHERE deal_id = ? AND status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ---- deal transcript ----

// AppendDealMessage appends one transcript entry. Entries are immutable.
func (s *SQLiteStore) AppendDealMessage(ctx context.Context, msg *domain.DealMessage) error {
	var content sql.NullString
	if len(msg.Content) > 0 {
		content = sql.NullString{String: string(msg.Content), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deal_messages (deal_id, from_agent, action, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.DealID, msg.FromAgent, string(msg.Action), content, msg.CreatedAt.UTC())
	return err
}

// ListDealMessages returns the transcript in insertion order.
func (s *SQLiteStore) ListDealMessages(ctx context.Context, dealID string) ([]domain.DealMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT deal_id, from_agent, action, content, created_at FROM deal_messages WHERE deal_id = ? ORDER BY id ASC`,
		dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.DealMessage
	for rows.Next() {
		var msg domain.DealMessage
		var action string
		var content sql.NullString
		if err := rows.Scan(&msg.DealID, &msg.FromAgent, &action, &content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Action = domain.DealAction(action)
		if content.Valid {
			msg.Content = json.RawMessage(content.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ---- proofs ----

// CreateProof persists a new commit-reveal record.
func (s *SQLiteStore) CreateProof(ctx context.Context, proof *domain.Proof) error {
	challenges, err := json.Marshal(proof.Challenges)
	if err != nil {
		return fmt.Errorf("failed to marshal challenges: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proofs (proof_id, deal_id, request_id, operator_id, status, plan_hash, deadline, challenges, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		proof.ProofID, nullString(proof.DealID), nullString(proof.RequestID), proof.OperatorID,
		string(proof.Status), proof.PlanHash, proof.Deadline.UTC(), string(challenges),
		proof.CreatedAt.UTC(), proof.UpdatedAt.UTC())
	return err
}

// GetProof returns the proof or nil when unknown.
func (s *SQLiteStore) GetProof(ctx context.Context, proofID string) (*domain.Proof, error) {
	row := s.db.QueryRowContext(ctx, selectProof+` WHERE proof_id = ?`, proofID)
	proof, err := scanProof(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// ListProofs returns proofs matching the filter, newest first.
func (s *SQLiteStore) ListProofs(ctx context.Context, filter domain.ProofFilter) ([]domain.Proof, error) {
	query := selectProof
	var conds []string
	var args []interface{}
	if filter.DealID != "" {
		conds = append(conds, `deal_id = ?`)
		args = append(args, filter.DealID)
	}
	if filter.RequestID != "" {
		conds = append(conds, `request_id = ?`)
		args = append(args, filter.RequestID)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proofs []domain.Proof
	for rows.Next() {
		proof, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, *proof)
	}
	return proofs, rows.Err()
}

const selectProof = `SELECT proof_id, deal_id, request_id, operator_id, status, plan_hash, plan_text,
	evidence, evidence_hash, deadline, challenge_window_ends, challenges, verified_by, verified_at,
	created_at, updated_at FROM proofs`

func scanProof(row rowScanner) (*domain.Proof, error) {
	var proof domain.Proof
	var dealID, requestID, planText, evidence, evidenceHash, challenges, verifiedBy sql.NullString
	var status string
	var windowEnds, verifiedAt sql.NullTime
	if err := row.Scan(&proof.ProofID, &dealID, &requestID, &proof.OperatorID, &status, &proof.PlanHash,
		&planText, &evidence, &evidenceHash, &proof.Deadline, &windowEnds, &challenges, &verifiedBy,
		&verifiedAt, &proof.CreatedAt, &proof.UpdatedAt); err != nil {
		return nil, err
	}
	proof.Status = domain.ProofStatus(status)
	proof.DealID = dealID.String
	proof.RequestID = requestID.String
	proof.PlanText = planText.String
	proof.EvidenceHash = evidenceHash.String
	proof.VerifiedBy = verifiedBy.String
	if evidence.Valid && evidence.String != "" {
		if err := json.Unmarshal([]byte(evidence.String), &proof.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
		}
	}
	if challenges.Valid && challenges.String != "" {
		if err := json.Unmarshal([]byte(challenges.String), &proof.Challenges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal challenges: %w", err)
		}
	}
	if windowEnds.Valid {
		t := windowEnds.Time
		proof.ChallengeWindowEnds = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		proof.VerifiedAt = &t
	}
	return &proof, nil
}

// MarkProofEvidence records the reveal: plan text, evidence, the evidence
// fingerprint and the challenge window, conditional on the proof still being
// in the committed state.
func (s *SQLiteStore) MarkProofEvidence(ctx context.Context, proofID string, planText string, evidence []domain.EvidenceItem, evidenceHash string, windowEnds time.Time) (bool, error) {
	b, err := json.Marshal(evidence)
	if err != nil {
		return false, fmt.Errorf("failed to marshal evidence: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE proofs SET status = ?, plan_text = ?, evidence = ?, evidence_hash = ?, challenge_window_ends = ?, updated_at = ?
		 WHERE proof_id = ? AND status = ?`,
		string(domain.ProofStatusEvidenceSubmitted), planText, string(b), evidenceHash,
		windowEnds.UTC(), time.Now().UTC(), proofID, string(domain.ProofStatusCommitted))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkProofVerified records the counterpart's acceptance, conditional on the
// proof being in the evidence_submitted state.
func (s *SQLiteStore) MarkProofVerified(ctx context.Context, proofID string, verifiedBy string, verifiedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proofs SET status = ?, verified_by = ?, verified_at = ?, updated_at = ?
		 WHERE proof_id = ? AND status = ?`,
		string(domain.ProofStatusVerified), verifiedBy, verifiedAt.UTC(), time.Now().UTC(),
		proofID, string(domain.ProofStatusEvidenceSubmitted))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AppendProofChallenge atomically appends one challenge and moves the proof
// to challenged. Legal from evidence_submitted (first challenge) and from
// challenged (further challenges accumulate on the list).
func (s *SQLiteStore) AppendProofChallenge(ctx context.Context, proofID string, ch domain.Challenge) (bool, error) {
	b, err := json.Marshal(ch)
	if err != nil {
		return false, fmt.Errorf("failed to marshal challenge: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE proofs SET status = ?, challenges = json_insert(COALESCE(challenges, '[]'), '$[#]', json(?)), updated_at = ?
		 WHERE proof_id = ? AND status IN (?, ?)`,
		string(domain.ProofStatusChallenged), string(b), time.Now().UTC(),
		proofID, string(domain.ProofStatusEvidenceSubmitted), string(domain.ProofStatusChallenged))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkProofExpired moves a committed proof to expired, used when the reveal
// deadline has passed.
func (s *SQLiteStore) MarkProofExpired(ctx context.Context, proofID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proofs SET status = ?, updated_at = ? WHERE proof_id = ? AND status = ?`,
		string(domain.ProofStatusExpired), time.Now().UTC(), proofID, string(domain.ProofStatusCommitted))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListOverdueProofs returns committed proofs whose reveal deadline has passed,
// oldest deadline first.
func (s *SQLiteStore) ListOverdueProofs(ctx context.Context, cutoff time.Time, limit int) ([]domain.Proof, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		selectProof+` WHERE status = ? AND deadline <= ? ORDER BY deadline LIMIT ?`,
		string(domain.ProofStatusCommitted), cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proofs []domain.Proof
	for rows.Next() {
		proof, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, *proof)
	}
	return proofs, rows.Err()
}

// ---- pricing history ----

// RecordPricingOutcome appends one immutable negotiation outcome.
func (s *SQLiteStore) RecordPricingOutcome(ctx context.Context, entry *domain.PricingHistoryEntry) error {
	var finalPrice, counterPrice sql.NullFloat64
	if entry.FinalPrice != nil {
		finalPrice = sql.NullFloat64{Float64: *entry.FinalPrice, Valid: true}
	}
	if entry.CounterPrice != nil {
		counterPrice = sql.NullFloat64{Float64: *entry.CounterPrice, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pricing_history (service, suggested_price, final_price, agent_id, outcome, counter_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Service), entry.SuggestedPrice, finalPrice, entry.AgentID,
		string(entry.Outcome), counterPrice, entry.CreatedAt.UTC())
	return err
}

// ServicePricingStats aggregates the trailing window for one service.
func (s *SQLiteStore) ServicePricingStats(ctx context.Context, service domain.ServiceKind, since time.Time) (domain.ServicePricingStats, error) {
	var stats domain.ServicePricingStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN counter_price IS NOT NULL THEN (suggested_price - counter_price) / suggested_price * 100.0 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN final_price IS NOT NULL THEN final_price ELSE suggested_price END), 0),
			COALESCE(AVG(suggested_price), 0)
		 FROM pricing_history WHERE service = ? AND created_at > ?`,
		string(service), since.UTC()).
		Scan(&stats.Total, &stats.Accepted, &stats.AvgCounterPct, &stats.AvgFinal, &stats.AvgSuggested)
	return stats, err
}

// AgentPricingStats aggregates the trailing window for one agent.
func (s *SQLiteStore) AgentPricingStats(ctx context.Context, agentID string, since time.Time) (domain.AgentPricingStats, error) {
	var stats domain.AgentPricingStats
	var services sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(AVG(CASE WHEN outcome = 'accepted' THEN 1.0 ELSE 0.0 END), 0),
			COALESCE(AVG(CASE WHEN counter_price IS NOT NULL THEN (suggested_price - counter_price) / suggested_price * 100.0 ELSE 0 END), 0),
			GROUP_CONCAT(DISTINCT service)
		 FROM pricing_history WHERE agent_id = ? AND created_at > ?`,
		agentID, since.UTC()).
		Scan(&stats.TotalDeals, &stats.AcceptanceRate, &stats.AvgDiscountPct, &services)
	if err != nil {
		return stats, err
	}
	if services.Valid && services.String != "" {
		stats.Services = strings.Split(services.String, ",")
	}
	if stats.TotalDeals > 0 {
		var last time.Time
		err = s.db.QueryRowContext(ctx,
			`SELECT created_at FROM pricing_history WHERE agent_id = ? AND created_at > ? ORDER BY created_at DESC LIMIT 1`,
			agentID, since.UTC()).Scan(&last)
		if err != nil {
			return stats, err
		}
		stats.LastDealAt = &last
	}
	return stats, nil
}

// PricingDashboard returns the per-service negotiation rollup for the window,
// busiest services first.
func (s *SQLiteStore) PricingDashboard(ctx context.Context, since time.Time) ([]domain.PricingDashboardRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service, COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'countered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(suggested_price), 0),
			AVG(final_price),
			COALESCE(AVG(CASE WHEN counter_price IS NOT NULL THEN (suggested_price - counter_price) / suggested_price * 100.0 ELSE 0 END), 0)
		 FROM pricing_history WHERE created_at > ?
		 GROUP BY service ORDER BY COUNT(*) DESC`,
		since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PricingDashboardRow
	for rows.Next() {
		var r domain.PricingDashboardRow
		var service string
		var avgFinal sql.NullFloat64
		if err := rows.Scan(&service, &r.TotalNegotiations, &r.Accepted, &r.Countered, &r.Rejected,
			&r.AvgSuggested, &avgFinal, &r.AvgDiscountPct); err != nil {
			return nil, err
		}
		r.Service = domain.ServiceKind(service)
		if avgFinal.Valid {
			f := avgFinal.Float64
			r.AvgFinal = &f
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- webhooks ----

// CreateWebhook persists a subscriber registration.
func (s *SQLiteStore) CreateWebhook(ctx context.Context, wh *domain.Webhook) error {
	events, err := json.Marshal(wh.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	active := 0
	if wh.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webhooks (webhook_id, agent_id, url, events, secret, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		wh.WebhookID, wh.AgentID, wh.URL, string(events), nullString(wh.Secret), active, wh.CreatedAt.UTC())
	return err
}

// ListWebhooksForEvent returns active subscribers of the given event.
func (s *SQLiteStore) ListWebhooksForEvent(ctx context.Context, event string) ([]domain.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT webhook_id, agent_id, url, events, secret, active, created_at FROM webhooks
		 WHERE active = 1 AND events LIKE ?`,
		`%"`+event+`"%`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// ListWebhooksByAgent returns all registrations owned by the agent.
func (s *SQLiteStore) ListWebhooksByAgent(ctx context.Context, agentID string) ([]domain.Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT webhook_id, agent_id, url, events, secret, active, created_at FROM webhooks WHERE agent_id = ?`,
		agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// DeleteWebhook removes a registration, reporting whether it existed.
func (s *SQLiteStore) DeleteWebhook(ctx context.Context, webhookID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE webhook_id = ?`, webhookID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func collectWebhooks(rows *sql.Rows) ([]domain.Webhook, error) {
	var hooks []domain.Webhook
	for rows.Next() {
		var wh domain.Webhook
		var events string
		var secret sql.NullString
		var active int
		if err := rows.Scan(&wh.WebhookID, &wh.AgentID, &wh.URL, &events, &secret, &active, &wh.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(events), &wh.Events); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
		wh.Secret = secret.String
		wh.Active = active != 0
		hooks = append(hooks, wh)
	}
	return hooks, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
