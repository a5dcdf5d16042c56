package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
	"bitbucket.org/mmdatafocus/financeiro_backend/config"
	"bitbucket.org/mmdatafocus/financeiro_backend/models"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

const relinkBatchSize = 500

var errDryRunRollback = errors.New("dry run: rolling back")

// TenantError is a tenant whose normalization was rolled back.
type TenantError struct {
	EmpresaId int
	Err       error
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("empresa %d: %v", e.EmpresaId, e.Err)
}

func (e *TenantError) Unwrap() error { return e.Err }

// Normalizer moves flat legacy chart-of-accounts records into the coded
// three-level tree and links postings to them. Each tenant is handled in its
// own transaction; a failing tenant does not stop the others.
type Normalizer struct {
	db         *gorm.DB
	logger     *logrus.Logger
	tracer     trace.Tracer
	rules      []ClassificationRule
	dryRun     bool
	workers    int
	empresaIds []int
}

type NormalizerOption func(*Normalizer)

func WithLogger(logger *logrus.Logger) NormalizerOption {
	return func(n *Normalizer) { n.logger = logger }
}

// WithDryRun runs every tenant inside a transaction that is rolled back.
func WithDryRun(dryRun bool) NormalizerOption {
	return func(n *Normalizer) { n.dryRun = dryRun }
}

// WithWorkers processes up to w tenants concurrently.
func WithWorkers(w int) NormalizerOption {
	return func(n *Normalizer) {
		if w > 0 {
			n.workers = w
		}
	}
}

// WithEmpresaIDs restricts the run to the given tenants.
func WithEmpresaIDs(ids ...int) NormalizerOption {
	return func(n *Normalizer) { n.empresaIds = ids }
}

func WithRules(rules []ClassificationRule) NormalizerOption {
	return func(n *Normalizer) { n.rules = rules }
}

func WithTracer(tracer trace.Tracer) NormalizerOption {
	return func(n *Normalizer) { n.tracer = tracer }
}

func NewNormalizer(db *gorm.DB, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		db:      db,
		logger:  logrus.StandardLogger(),
		tracer:  otel.Tracer("bitbucket.org/mmdatafocus/financeiro_backend/workflow"),
		rules:   DefaultRules,
		workers: 1,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type TenantResult struct {
	EmpresaId               int
	NodesCreated            int
	AccountsReclassified    int
	FallbackClassifications int
	AccountsSkipped         int
	PostingsRelinked        int
	PostingsUnmatched       int
	RelinkedAmount          decimal.Decimal
	Err                     error
}

type NormalizeResult struct {
	DryRun                  bool
	TenantsProcessed        int
	TenantsFailed           []int
	NodesCreated            int
	AccountsReclassified    int
	FallbackClassifications int
	AccountsSkipped         int
	PostingsRelinked        int
	PostingsUnmatched       int
	RelinkedAmount          decimal.Decimal
	Tenants                 []TenantResult
	// Aborted is set when the connection was lost; tenants not yet started are absent.
	Aborted  bool
	Duration time.Duration
}

func (r *NormalizeResult) HasFailures() bool { return len(r.TenantsFailed) > 0 }

func (r *NormalizeResult) Tenant(empresaId int) (TenantResult, bool) {
	for _, t := range r.Tenants {
		if t.EmpresaId == empresaId {
			return t, true
		}
	}
	return TenantResult{}, false
}

func (r *NormalizeResult) add(t TenantResult) {
	r.Tenants = append(r.Tenants, t)
	if t.Err != nil {
		r.TenantsFailed = append(r.TenantsFailed, t.EmpresaId)
		return
	}
	r.TenantsProcessed++
	r.NodesCreated += t.NodesCreated
	r.AccountsReclassified += t.AccountsReclassified
	r.FallbackClassifications += t.FallbackClassifications
	r.AccountsSkipped += t.AccountsSkipped
	r.PostingsRelinked += t.PostingsRelinked
	r.PostingsUnmatched += t.PostingsUnmatched
	r.RelinkedAmount = r.RelinkedAmount.Add(t.RelinkedAmount)
}

func (r *NormalizeResult) Log(logger *logrus.Logger) {
	logger.WithFields(logrus.Fields{
		"dry_run":            r.DryRun,
		"aborted":            r.Aborted,
		"tenants_processed":  r.TenantsProcessed,
		"tenants_failed":     len(r.TenantsFailed),
		"nodes_created":      r.NodesCreated,
		"accounts_reclassed": r.AccountsReclassified,
		"fallback":           r.FallbackClassifications,
		"accounts_skipped":   r.AccountsSkipped,
		"postings_relinked":  r.PostingsRelinked,
		"postings_unmatched": r.PostingsUnmatched,
		"relinked_amount":    r.RelinkedAmount.StringFixed(2),
		"duration":           r.Duration.String(),
	}).Info("chart of accounts normalization finished")
	for _, t := range r.Tenants {
		if t.Err != nil {
			logger.WithField("empresa_id", t.EmpresaId).Errorf("tenant failed: %v", t.Err)
		}
	}
}

// Run normalizes every selected tenant. Tenant failures are in the result; the
// error is for failures that stop the whole run, a lost connection included,
// which is returned as a *schema.ConnectionError.
func (n *Normalizer) Run(ctx context.Context) (*NormalizeResult, error) {
	start := time.Now()
	if err := n.ping(ctx); err != nil {
		return nil, err
	}
	ids, err := n.tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	results := make([]TenantResult, len(ids))
	started := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			started[i] = true
			results[i] = n.normalizeTenant(gctx, id)
			if results[i].Err == nil {
				return nil
			}
			return n.ping(ctx)
		})
	}
	runErr := g.Wait()

	out := &NormalizeResult{DryRun: n.dryRun, RelinkedAmount: decimal.Zero, Aborted: runErr != nil}
	var done []TenantResult
	for i, r := range results {
		if started[i] {
			done = append(done, r)
		}
	}
	sort.Slice(done, func(a, b int) bool { return done[a].EmpresaId < done[b].EmpresaId })
	for _, r := range done {
		out.add(r)
	}
	out.Duration = time.Since(start)
	out.Log(n.logger)
	if runErr != nil {
		config.LogError(n.logger, "workflow", "Run", "connection lost, run aborted", nil, runErr)
		return out, runErr
	}
	return out, nil
}

func (n *Normalizer) ping(ctx context.Context) error {
	sqlDB, err := n.db.DB()
	if err != nil {
		return &schema.ConnectionError{Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &schema.ConnectionError{Err: err}
	}
	return nil
}

func (n *Normalizer) tenants(ctx context.Context) ([]int, error) {
	if len(n.empresaIds) > 0 {
		return n.empresaIds, nil
	}
	var ids []int
	err := n.db.WithContext(ctx).Model(&models.Company{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (n *Normalizer) normalizeTenant(ctx context.Context, empresaId int) (res TenantResult) {
	ctx = appctx.WithEmpresaId(ctx, empresaId)
	ctx, span := n.tracer.Start(ctx, "workflow.NormalizeTenant", trace.WithAttributes(
		attribute.Int("empresa.id", empresaId),
		attribute.Bool("dry_run", n.dryRun),
	))
	defer span.End()

	res = TenantResult{EmpresaId: empresaId, RelinkedAmount: decimal.Zero}
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tree := &tenantTree{tx: tx, empresaId: empresaId, nodes: map[string]*models.Account{}, res: &res}
		if err := n.reclassify(ctx, tree); err != nil {
			return fmt.Errorf("reclassify: %w", err)
		}
		if err := n.relink(ctx, tx, empresaId, &res); err != nil {
			return fmt.Errorf("relink: %w", err)
		}
		if n.dryRun {
			return errDryRunRollback
		}
		return nil
	})
	if errors.Is(err, errDryRunRollback) {
		err = nil
	}
	if err != nil {
		// counts from a rolled back transaction mean nothing
		res = TenantResult{EmpresaId: empresaId, RelinkedAmount: decimal.Zero, Err: &TenantError{EmpresaId: empresaId, Err: err}}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(n.logger, "workflow", "normalizeTenant", fmt.Sprintf("empresa %d", empresaId), nil, err)
		return res
	}

	actor, _ := appctx.ActorFrom(ctx)
	n.logger.WithFields(logrus.Fields{
		"actor":              actor,
		"empresa_id":         empresaId,
		"nodes_created":      res.NodesCreated,
		"accounts_reclassed": res.AccountsReclassified,
		"postings_relinked":  res.PostingsRelinked,
		"postings_unmatched": res.PostingsUnmatched,
	}).Info("tenant normalized")
	return res
}

// reclassify gives every uncoded account of the tenant a parent, a level and
// a code, in id order.
func (n *Normalizer) reclassify(ctx context.Context, tree *tenantTree) error {
	var legacy []models.Account
	err := tree.tx.WithContext(ctx).
		Where("empresa_id = ? AND (codigo IS NULL OR codigo = '')", tree.empresaId).
		Order("id").
		Find(&legacy).Error
	if err != nil {
		return err
	}

	for _, acc := range legacy {
		class, ok := Classify(n.rules, acc.Nome, acc.Tipo)
		if !ok {
			tree.res.AccountsSkipped++
			n.logger.WithFields(logrus.Fields{"empresa_id": tree.empresaId, "account_id": acc.ID, "tipo": acc.Tipo}).
				Warn("account has no inflow/outflow type; left unclassified")
			continue
		}
		parent, err := tree.ensure(ctx, class.Subgroup)
		if err != nil {
			return err
		}
		code, err := models.NextChildCode(ctx, tree.tx, tree.empresaId, parent)
		if err != nil {
			return err
		}
		err = tree.tx.WithContext(ctx).Model(&models.Account{}).
			Where("id = ? AND empresa_id = ?", acc.ID, tree.empresaId).
			Updates(map[string]interface{}{
				"codigo":       code,
				"nivel":        models.ChildLevel(parent),
				"natureza":     models.AccountNatureAnalytic,
				"conta_pai_id": parent.ID,
			}).Error
		if err != nil {
			return err
		}
		tree.res.AccountsReclassified++
		if class.Fallback {
			tree.res.FallbackClassifications++
		}
		n.logger.WithFields(logrus.Fields{
			"empresa_id": tree.empresaId,
			"account":    acc.Nome,
			"code":       code,
			"rule":       class.Rule,
		}).Debug("account reclassified")
	}
	return nil
}

// relink points postings without an account at the analytic node whose name
// equals their category. When the name exists for both directions the node
// with the posting's direction wins.
func (n *Normalizer) relink(ctx context.Context, tx *gorm.DB, empresaId int, res *TenantResult) error {
	var leaves []models.Account
	err := tx.WithContext(ctx).
		Where("empresa_id = ? AND natureza = ?", empresaId, models.AccountNatureAnalytic).
		Order("id").
		Find(&leaves).Error
	if err != nil {
		return err
	}
	byName := make(map[string][]models.Account, len(leaves))
	for _, l := range leaves {
		byName[l.Nome] = append(byName[l.Nome], l)
	}

	var postings []models.Posting
	err = tx.WithContext(ctx).
		Where("empresa_id = ? AND plano_conta_id IS NULL", empresaId).
		Order("id").
		Find(&postings).Error
	if err != nil {
		return err
	}

	batches := map[int][]int{}
	var order []int
	for _, p := range postings {
		node := pickNode(byName[p.Categoria], p.Tipo)
		if node == nil {
			res.PostingsUnmatched++
			continue
		}
		if _, seen := batches[node.ID]; !seen {
			order = append(order, node.ID)
		}
		batches[node.ID] = append(batches[node.ID], p.ID)
		res.RelinkedAmount = res.RelinkedAmount.Add(p.Valor)
	}

	for _, nodeID := range order {
		ids := batches[nodeID]
		for start := 0; start < len(ids); start += relinkBatchSize {
			end := start + relinkBatchSize
			if end > len(ids) {
				end = len(ids)
			}
			result := tx.WithContext(ctx).Model(&models.Posting{}).
				Where("empresa_id = ? AND plano_conta_id IS NULL AND id IN ?", empresaId, ids[start:end]).
				Update("plano_conta_id", nodeID)
			if result.Error != nil {
				return result.Error
			}
			res.PostingsRelinked += int(result.RowsAffected)
		}
	}
	return nil
}

func pickNode(candidates []models.Account, kind models.AccountKind) *models.Account {
	if len(candidates) == 0 {
		return nil
	}
	for i := range candidates {
		if candidates[i].Tipo == kind {
			return &candidates[i]
		}
	}
	return &candidates[0]
}

// tenantTree creates the fixed synthetic nodes of one tenant on first need.
type tenantTree struct {
	tx        *gorm.DB
	empresaId int
	nodes     map[string]*models.Account
	res       *TenantResult
}

func (t *tenantTree) ensure(ctx context.Context, node *ChartNode) (*models.Account, error) {
	if acc, ok := t.nodes[node.Code]; ok {
		return acc, nil
	}
	var parentID *int
	if node.Parent != nil {
		parent, err := t.ensure(ctx, node.Parent)
		if err != nil {
			return nil, err
		}
		parentID = &parent.ID
	}

	acc, err := models.FindAccountByCode(ctx, t.tx, t.empresaId, node.Code)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		code, level, empresaId := node.Code, node.Level(), t.empresaId
		acc = &models.Account{
			Nome:       node.Name,
			Tipo:       node.Kind,
			Ativo:      true,
			Codigo:     &code,
			Natureza:   models.AccountNatureSynthetic,
			Nivel:      &level,
			ContaPaiId: parentID,
			EmpresaId:  &empresaId,
		}
		if err := t.tx.WithContext(ctx).Create(acc).Error; err != nil {
			return nil, err
		}
		t.res.NodesCreated++
	}
	t.nodes[node.Code] = acc
	return acc, nil
}
