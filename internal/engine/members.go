package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"socialservice/internal/domain"
	"socialservice/internal/events"
)

// normalizeEmails trims and lowercases emails, keeping input order. Every
// address must belong to domain and appear once.
func normalizeEmails(emails []string, domain string) ([]string, error) {
	suffix := "@" + strings.ToLower(domain)
	seen := make(map[string]int, len(emails))
	out := make([]string, 0, len(emails))
	for i, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		field := fmt.Sprintf("emails[%d]", i)
		if email == "" {
			return nil, ValidationError{Field: field, Reason: "is required"}
		}
		if !strings.HasSuffix(email, suffix) || len(email) == len(suffix) || strings.Count(email, "@") != 1 {
			return nil, ValidationError{Field: field, Reason: fmt.Sprintf("%q is not an institutional address (%s)", email, suffix)}
		}
		if first, ok := seen[email]; ok {
			return nil, ValidationError{Field: field, Reason: fmt.Sprintf("duplicate email %q (also at emails[%d])", email, first)}
		}
		seen[email] = i
		out = append(out, email)
	}
	return out, nil
}

// AddMembers appends a batch of members to a group selection. The batch is
// inserted whole or not at all.
func (e Engine) AddMembers(ctx context.Context, actor domain.Actor, workID int64, emails []string) ([]domain.GroupMember, error) {
	if len(emails) == 0 {
		return nil, ValidationError{Field: "emails", Reason: "at least one email is required"}
	}
	normalized, err := normalizeEmails(emails, e.config().Institution.EmailDomain)
	if err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkTx(ctx, tx, workID)
	if err != nil {
		return nil, mapNotFound(err, "work selection", workID)
	}
	if w.ServiceType != domain.ServiceGroup {
		return nil, workConflict(w, "service_type", string(w.ServiceType), "only group selections have members")
	}
	existing, err := e.Repo.ListMembersTx(ctx, tx, workID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(existing))
	for _, m := range existing {
		present[m.Email] = true
	}
	for i, email := range normalized {
		if present[email] {
			return nil, ValidationError{Field: fmt.Sprintf("emails[%d]", i), Reason: fmt.Sprintf("%q is already a member", email)}
		}
	}
	if err := e.Repo.InsertMembers(ctx, tx, workID, normalized, e.timestamp()); err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, tx, "members.added", workID, "work", "", actor, events.EventPayload{"emails": normalized}); err != nil {
		return nil, err
	}
	members, err := e.Repo.ListMembersTx(ctx, tx, workID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return members, nil
}

func (e Engine) SetMemberStatus(ctx context.Context, actor domain.Actor, memberID int64, status domain.AttendanceStatus) (domain.GroupMember, error) {
	if !status.Valid() {
		return domain.GroupMember{}, ValidationError{Field: "status", Reason: "must be ATTENDED or NOT_ATTENDED"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GroupMember{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMemberTx(ctx, tx, memberID)
	if err != nil {
		return m, mapNotFound(err, "group member", memberID)
	}
	if err := e.Repo.UpdateMemberStatus(ctx, tx, memberID, status); err != nil {
		return m, mapNotFound(err, "group member", memberID)
	}
	if err := e.appendEvent(ctx, tx, "member.status.changed", m.WorkID, "member", formatID(memberID), actor, events.EventPayload{
		"email": m.Email,
		"from":  m.Status,
		"to":    status,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	m.Status = status
	return m, nil
}

func (e Engine) ListMembers(ctx context.Context, workID int64) ([]domain.GroupMember, error) {
	if _, err := e.Repo.GetWork(ctx, workID); err != nil {
		return nil, mapNotFound(err, "work selection", workID)
	}
	return e.Repo.ListMembers(ctx, workID)
}

// Enrich resolves the directory identity of every member of workID. Lookups
// run concurrently, each bounded by the directory timeout; a failed lookup
// only marks its own member.
func (e Engine) Enrich(ctx context.Context, workID int64) ([]domain.EnrichedMember, error) {
	members, err := e.ListMembers(ctx, workID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.EnrichedMember, len(members))
	for i, m := range members {
		out[i] = domain.EnrichedMember{GroupMember: m, Code: m.Code()}
	}
	if len(members) == 0 {
		return out, nil
	}
	if e.Directory == nil {
		for i := range out {
			out[i].Diagnostic = "directory unavailable"
		}
		return out, nil
	}
	cfg := e.config().Directory
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for i := range out {
		p.Go(func() {
			lookupCtx := ctx
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				lookupCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
				defer cancel()
			}
			identity, err := e.Directory.Lookup(lookupCtx, out[i].Code)
			switch {
			case err != nil:
				e.logger().Warn("directory lookup failed", slog.Int64("work_id", workID), slog.String("code", out[i].Code), slog.String("error", err.Error()))
				out[i].Diagnostic = "directory unavailable: " + err.Error()
			case identity == nil:
				out[i].Diagnostic = "not found in directory"
			default:
				out[i].Identity = identity
			}
		})
	}
	p.Wait()
	return out, nil
}

// ResolveIdentity looks up a single institutional code.
func (e Engine) ResolveIdentity(ctx context.Context, code string) (domain.Identity, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Identity{}, ValidationError{Field: "code", Reason: "is required"}
	}
	if e.Directory == nil {
		return domain.Identity{}, ExternalServiceError{Service: "directory", Err: errors.New("not configured")}
	}
	timeout := e.config().Directory.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	identity, err := e.Directory.Lookup(ctx, code)
	if err != nil {
		return domain.Identity{}, ExternalServiceError{Service: "directory", Err: err}
	}
	if identity == nil {
		return domain.Identity{}, NotFoundError{Entity: "identity", ID: code}
	}
	return *identity, nil
}

// RecordMemberDocument stores a per-member acceptance letter or certificate
// of a group selection, replacing any earlier file for the same member.
func (e Engine) RecordMemberDocument(ctx context.Context, actor domain.Actor, workID int64, kind domain.MemberDocumentKind, code string, up Upload) (domain.MemberDocument, error) {
	if !kind.Valid() {
		return domain.MemberDocument{}, ValidationError{Field: "kind", Reason: "must be acceptance or certificate"}
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.MemberDocument{}, ValidationError{Field: "code", Reason: "is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MemberDocument{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkTx(ctx, tx, workID)
	if err != nil {
		return domain.MemberDocument{}, mapNotFound(err, "work selection", workID)
	}
	if w.ServiceType != domain.ServiceGroup {
		return domain.MemberDocument{}, workConflict(w, "service_type", string(w.ServiceType), "member documents belong to group selections")
	}
	members, err := e.Repo.ListMembersTx(ctx, tx, workID)
	if err != nil {
		return domain.MemberDocument{}, err
	}
	found := false
	for _, m := range members {
		if m.Code() == code {
			found = true
			break
		}
	}
	if !found {
		return domain.MemberDocument{}, NotFoundError{Entity: "group member", ID: code}
	}
	ref, err := e.saveUpload(ctx, up)
	if err != nil {
		return domain.MemberDocument{}, err
	}
	committed := false
	defer func() {
		if !committed {
			e.removeFile(ctx, workID, ref)
		}
	}()
	doc := domain.MemberDocument{WorkID: workID, Kind: kind, Code: code, File: ref, CreatedAt: e.timestamp()}
	previous, err := e.Repo.UpsertMemberDocument(ctx, tx, doc)
	if err != nil {
		return domain.MemberDocument{}, err
	}
	if err := e.appendEvent(ctx, tx, "member_document.recorded", workID, "member", code, actor, events.EventPayload{
		"kind": kind,
		"file": ref,
	}); err != nil {
		return domain.MemberDocument{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MemberDocument{}, err
	}
	committed = true
	if previous != nil && *previous != ref {
		e.removeFile(ctx, workID, *previous)
	}
	docs, err := e.Repo.ListMemberDocuments(ctx, workID, kind)
	if err != nil {
		return doc, nil
	}
	for _, d := range docs {
		if d.Code == code {
			return d, nil
		}
	}
	return doc, nil
}

func (e Engine) ListMemberDocuments(ctx context.Context, workID int64, kind domain.MemberDocumentKind) ([]domain.MemberDocument, error) {
	if kind != "" && !kind.Valid() {
		return nil, ValidationError{Field: "kind", Reason: "must be acceptance or certificate"}
	}
	if _, err := e.Repo.GetWork(ctx, workID); err != nil {
		return nil, mapNotFound(err, "work selection", workID)
	}
	return e.Repo.ListMemberDocuments(ctx, workID, kind)
}
