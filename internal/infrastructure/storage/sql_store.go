package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

// Dialect selects placeholder syntax and migrations.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var (
	agencyColumns   = []string{"id", "parent_id", "type", "territory_code", "referenced_by_document_url", "still_referenced", "certificate"}
	nameColumns     = []string{"id", "agency_id", "language_code", "name"}
	documentColumns = []string{"id", "url", "type", "language_code", "agency_id", "still_provided", "referenced_by_type"}
)

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists the registry through database/sql.
type SQLStore struct {
	*sqlRepository
	db *sql.DB
}

var _ ports.Store = (*SQLStore)(nil)

// NewSQLStore wires a sql.DB implementation.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{
		sqlRepository: &sqlRepository{q: db, sb: builder},
		db:            db,
	}
}

// InTx runs fn inside one database transaction. An error or a panic in fn
// rolls the transaction back; the panic is then re-raised.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, repo ports.AgencyRepository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit tx: %w", commitErr)
		}
	}()

	return fn(ctx, &sqlRepository{q: tx, sb: s.sb})
}

type sqlRepository struct {
	q  runner
	sb sq.StatementBuilderType
}

var _ ports.AgencyRepository = (*sqlRepository)(nil)

func (r *sqlRepository) FindRootAgency(ctx context.Context) (domain.Agency, error) {
	query := r.sb.Select(agencyColumns...).From("agency").
		Where(sq.Eq{"parent_id": nil}).
		OrderBy("id").Limit(1)
	return r.findOneAgency(ctx, query, "find root agency")
}

func (r *sqlRepository) FindAgency(ctx context.Context, id int64) (domain.Agency, error) {
	query := r.sb.Select(agencyColumns...).From("agency").Where(sq.Eq{"id": id})
	return r.findOneAgency(ctx, query, fmt.Sprintf("find agency %d", id))
}

func (r *sqlRepository) FindListOperatorByTerritory(ctx context.Context, territoryCode string) (domain.Agency, error) {
	query := r.sb.Select(agencyColumns...).From("agency").
		Where(sq.Eq{"type": string(domain.AgencyListOperator)}).
		Where(sq.Eq{"territory_code": territoryCode}).
		OrderBy("id").Limit(1)
	return r.findOneAgency(ctx, query, "find list operator "+territoryCode)
}

func (r *sqlRepository) FindChildren(ctx context.Context, parentID int64) ([]domain.Agency, error) {
	query := r.sb.Select(agencyColumns...).From("agency").
		Where(sq.Eq{"parent_id": parentID}).
		OrderBy("id")
	return r.findAgencies(ctx, query, "find children")
}

func (r *sqlRepository) FindStillReferencedChildren(ctx context.Context, parentID int64) ([]domain.Agency, error) {
	query := r.sb.Select(agencyColumns...).From("agency").
		Where(sq.Eq{"parent_id": parentID}).
		Where(sq.Eq{"still_referenced": true}).
		OrderBy("id")
	return r.findAgencies(ctx, query, "find still referenced children")
}

func (r *sqlRepository) InsertAgency(ctx context.Context, agency domain.Agency) (int64, error) {
	query, args, err := r.sb.Insert("agency").
		Columns(agencyColumns[1:]...).
		Values(
			nullInt64(agency.ParentID),
			string(agency.Type),
			nullString(agency.TerritoryCode),
			nullString(agency.ReferencedByDocumentURL),
			nullBool(agency.StillReferenced),
			nullString(agency.Certificate),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert agency: %w", err)
	}

	var id int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert agency: %w", err)
	}
	return id, nil
}

func (r *sqlRepository) UpdateAgency(ctx context.Context, agency domain.Agency) error {
	query, args, err := r.sb.Update("agency").
		Set("referenced_by_document_url", nullString(agency.ReferencedByDocumentURL)).
		Set("still_referenced", nullBool(agency.StillReferenced)).
		Where(sq.Eq{"id": agency.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update agency: %w", err)
	}
	return r.execOne(ctx, query, args, fmt.Sprintf("update agency %d", agency.ID))
}

func (r *sqlRepository) FindNames(ctx context.Context, agencyID int64) ([]domain.AgencyName, error) {
	query := r.sb.Select(nameColumns...).From("agency_name").
		Where(sq.Eq{"agency_id": agencyID}).
		OrderBy("id")
	return r.findNames(ctx, query)
}

func (r *sqlRepository) InsertName(ctx context.Context, name domain.AgencyName) (int64, error) {
	query, args, err := r.sb.Insert("agency_name").
		Columns(nameColumns[1:]...).
		Values(name.AgencyID, name.LanguageCode, name.Name).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert name: %w", err)
	}

	var id int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert name: %w", err)
	}
	return id, nil
}

func (r *sqlRepository) DeleteName(ctx context.Context, id int64) error {
	query, args, err := r.sb.Delete("agency_name").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete name: %w", err)
	}
	return r.execOne(ctx, query, args, fmt.Sprintf("delete name %d", id))
}

func (r *sqlRepository) FindDocumentsByAgency(ctx context.Context, agencyID int64) ([]domain.Document, error) {
	query := r.sb.Select(documentColumns...).From("document").
		Where(sq.Eq{"agency_id": agencyID}).
		OrderBy("id")
	return r.findDocuments(ctx, query)
}

func (r *sqlRepository) FindDocumentByURL(ctx context.Context, url string) (domain.Document, error) {
	docs, err := r.findDocuments(ctx, r.sb.Select(documentColumns...).From("document").Where(sq.Eq{"url": url}))
	if err != nil {
		return domain.Document{}, err
	}
	if len(docs) == 0 {
		return domain.Document{}, fmt.Errorf("find document %s: %w", url, domain.ErrNotFound)
	}
	return docs[0], nil
}

func (r *sqlRepository) FindStillProvidedDocuments(ctx context.Context, agencyID int64, docType domain.DocumentType) ([]domain.Document, error) {
	query := r.sb.Select(documentColumns...).From("document").
		Where(sq.Eq{"agency_id": agencyID}).
		Where(sq.Eq{"type": string(docType)}).
		Where(sq.Eq{"still_provided": true}).
		OrderBy("id")
	return r.findDocuments(ctx, query)
}

func (r *sqlRepository) InsertDocument(ctx context.Context, doc domain.Document) (int64, error) {
	query, args, err := r.sb.Insert("document").
		Columns(documentColumns[1:]...).
		Values(doc.URL, string(doc.Type), doc.LanguageCode, doc.AgencyID, doc.StillProvided, string(doc.ReferencedByType)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert document: %w", err)
	}

	var id int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert document %s: %w", doc.URL, err)
	}
	return id, nil
}

func (r *sqlRepository) UpdateDocument(ctx context.Context, doc domain.Document) error {
	query, args, err := r.sb.Update("document").
		Set("type", string(doc.Type)).
		Set("language_code", doc.LanguageCode).
		Set("agency_id", doc.AgencyID).
		Set("still_provided", doc.StillProvided).
		Set("referenced_by_type", string(doc.ReferencedByType)).
		Where(sq.Eq{"id": doc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update document: %w", err)
	}
	return r.execOne(ctx, query, args, fmt.Sprintf("update document %d", doc.ID))
}

func (r *sqlRepository) FindAllAgencies(ctx context.Context) ([]domain.Agency, error) {
	return r.findAgencies(ctx, r.sb.Select(agencyColumns...).From("agency").OrderBy("id"), "find all agencies")
}

func (r *sqlRepository) FindAllDocuments(ctx context.Context) ([]domain.Document, error) {
	return r.findDocuments(ctx, r.sb.Select(documentColumns...).From("document").OrderBy("id"))
}

func (r *sqlRepository) FindStillProvidedDocumentRefs(ctx context.Context) ([]domain.DocumentRef, error) {
	query, args, err := r.sb.Select("url", "type").Distinct().From("document").
		Where(sq.Eq{"still_provided": true}).
		OrderBy("url", "type").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find document refs: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query document refs: %w", err)
	}
	defer rows.Close()

	var refs []domain.DocumentRef
	for rows.Next() {
		var ref domain.DocumentRef
		var docType string
		if err := rows.Scan(&ref.URL, &docType); err != nil {
			return nil, fmt.Errorf("scan document ref: %w", err)
		}
		ref.Type = domain.DocumentType(docType)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return refs, nil
}

func (r *sqlRepository) InsertCheckingResult(ctx context.Context, result domain.CheckingResult) (int64, error) {
	query, args, err := r.sb.Insert("document_checking_result").
		Columns("url", "checked_at", "is_available", "is_valid", "size_in_bytes", "download_duration_ms").
		Values(result.URL, result.CheckedAt.UTC(), result.Available, result.Valid, result.SizeInBytes, result.DownloadDuration.Milliseconds()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert checking result: %w", err)
	}

	var id int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert checking result %s: %w", result.URL, err)
	}
	return id, nil
}

// FindDocumentStatistics averages every result of a url and reads size and
// duration from its most recent one.
func (r *sqlRepository) FindDocumentStatistics(ctx context.Context) (map[string]domain.DocumentStatistics, error) {
	averages, args, err := r.sb.Select(
		"url",
		"CAST(AVG(CASE WHEN is_available THEN 100.0 ELSE 0.0 END) AS DOUBLE PRECISION)",
		"CAST(AVG(CASE WHEN is_valid THEN 100.0 ELSE 0.0 END) AS DOUBLE PRECISION)",
	).From("document_checking_result").GroupBy("url").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statistics: %w", err)
	}

	stats := map[string]domain.DocumentStatistics{}
	rows, err := r.q.QueryContext(ctx, averages, args...)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	for rows.Next() {
		var s domain.DocumentStatistics
		if err := rows.Scan(&s.URL, &s.AvailabilityPercentage, &s.ValidityPercentage); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats[s.URL] = s
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}

	latest, args, err := r.sb.Select("r.url", "r.size_in_bytes", "r.download_duration_ms").
		From("document_checking_result AS r").
		Join("(SELECT url, MAX(checked_at) AS checked_at FROM document_checking_result GROUP BY url) AS latest ON latest.url = r.url AND latest.checked_at = r.checked_at").
		OrderBy("r.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest results: %w", err)
	}

	rows, err = r.q.QueryContext(ctx, latest, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest results: %w", err)
	}
	defer rows.Close()

	// Results sharing the latest timestamp resolve to the highest id.
	for rows.Next() {
		var (
			url        string
			size       int64
			durationMS int64
		)
		if err := rows.Scan(&url, &size, &durationMS); err != nil {
			return nil, fmt.Errorf("scan latest result: %w", err)
		}
		s := stats[url]
		s.URL = url
		s.CurrentSize = size
		s.LastDownloadDuration = time.Duration(durationMS) * time.Millisecond
		stats[url] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return stats, nil
}

func (r *sqlRepository) findOneAgency(ctx context.Context, query sq.SelectBuilder, op string) (domain.Agency, error) {
	agencies, err := r.findAgencies(ctx, query, op)
	if err != nil {
		return domain.Agency{}, err
	}
	if len(agencies) == 0 {
		return domain.Agency{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return agencies[0], nil
}

// findAgencies loads agency rows and attaches their names.
func (r *sqlRepository) findAgencies(ctx context.Context, query sq.SelectBuilder, op string) ([]domain.Agency, error) {
	statement, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	rows, err := r.q.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var agencies []domain.Agency
	for rows.Next() {
		agency, err := scanAgency(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		agencies = append(agencies, agency)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("%s: rows iteration: %w", op, err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("%s: close rows: %w", op, err)
	}

	if len(agencies) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(agencies))
	for i, agency := range agencies {
		ids[i] = agency.ID
	}
	names, err := r.findNames(ctx, r.sb.Select(nameColumns...).From("agency_name").
		Where(sq.Eq{"agency_id": ids}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	index := make(map[int64]int, len(agencies))
	for i, agency := range agencies {
		index[agency.ID] = i
	}
	for _, name := range names {
		if i, ok := index[name.AgencyID]; ok {
			agencies[i].Names = append(agencies[i].Names, name)
		}
	}
	return agencies, nil
}

func (r *sqlRepository) findNames(ctx context.Context, query sq.SelectBuilder) ([]domain.AgencyName, error) {
	statement, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find names: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []domain.AgencyName
	for rows.Next() {
		var name domain.AgencyName
		if err := rows.Scan(&name.ID, &name.AgencyID, &name.LanguageCode, &name.Name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return names, nil
}

func (r *sqlRepository) findDocuments(ctx context.Context, query sq.SelectBuilder) ([]domain.Document, error) {
	statement, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find documents: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var (
			doc            domain.Document
			docType        string
			referencedType string
		)
		if err := rows.Scan(&doc.ID, &doc.URL, &docType, &doc.LanguageCode, &doc.AgencyID, &doc.StillProvided, &referencedType); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Type = domain.DocumentType(docType)
		doc.ReferencedByType = domain.DocumentType(referencedType)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return docs, nil
}

func (r *sqlRepository) execOne(ctx context.Context, query string, args []any, op string) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanAgency(rows *sql.Rows) (domain.Agency, error) {
	var (
		agency          domain.Agency
		parentID        sql.NullInt64
		agencyType      string
		territoryCode   sql.NullString
		referencedByURL sql.NullString
		stillReferenced sql.NullBool
		certificate     sql.NullString
	)
	if err := rows.Scan(&agency.ID, &parentID, &agencyType, &territoryCode, &referencedByURL, &stillReferenced, &certificate); err != nil {
		return domain.Agency{}, fmt.Errorf("scan agency: %w", err)
	}

	agency.ParentID = parentID.Int64
	agency.Type = domain.AgencyType(agencyType)
	agency.TerritoryCode = territoryCode.String
	agency.ReferencedByDocumentURL = referencedByURL.String
	agency.Certificate = certificate.String
	if stillReferenced.Valid {
		agency.StillReferenced = domain.Bool(stillReferenced.Bool)
	}
	return agency, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
