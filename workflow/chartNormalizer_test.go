package workflow_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/models"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
	"bitbucket.org/mmdatafocus/financeiro_backend/testhelpers"
	"bitbucket.org/mmdatafocus/financeiro_backend/workflow"
)

func migratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	runMigrations(t, db)
	return db
}

func runMigrations(t *testing.T, db *gorm.DB) *migrator.Summary {
	t.Helper()
	logger, _ := testhelpers.NewLogger()
	summary, err := migrator.NewRunner(db, schema.SQLite{}, migrator.WithLogger(logger), migrator.WithVerify(true)).
		Run(context.Background(), models.FinanceiroSteps())
	require.NoError(t, err)
	return summary
}

func normalize(t *testing.T, db *gorm.DB, opts ...workflow.NormalizerOption) *workflow.NormalizeResult {
	t.Helper()
	logger, _ := testhelpers.NewLogger()
	res, err := workflow.NewNormalizer(db, append([]workflow.NormalizerOption{workflow.WithLogger(logger)}, opts...)...).
		Run(context.Background())
	require.NoError(t, err)
	return res
}

func newCompany(t *testing.T, db *gorm.DB, nome string) int {
	t.Helper()
	now := time.Now()
	c := models.Company{Nome: nome, Ativo: true, DataInicioAssinatura: &now}
	require.NoError(t, db.Create(&c).Error)
	return c.ID
}

func legacyAccount(t *testing.T, db *gorm.DB, empresaId int, nome string, kind models.AccountKind) models.Account {
	t.Helper()
	a := models.Account{Nome: nome, Tipo: kind, Ativo: true, EmpresaId: &empresaId}
	require.NoError(t, db.Create(&a).Error)
	return a
}

func newPosting(t *testing.T, db *gorm.DB, empresaId int, categoria string, kind models.AccountKind, valor string) models.Posting {
	t.Helper()
	p := models.Posting{
		Descricao: categoria,
		Valor:     decimal.RequireFromString(valor),
		Tipo:      kind,
		Categoria: categoria,
		Data:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EmpresaId: &empresaId,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func reload(t *testing.T, db *gorm.DB, id int) models.Account {
	t.Helper()
	var a models.Account
	require.NoError(t, db.First(&a, id).Error)
	return a
}

// postingAccount loads into a fresh value: gorm adds a populated primary key
// to the WHERE clause, so a reused struct would never find a second row.
func postingAccount(t *testing.T, db *gorm.DB, id int) *int {
	t.Helper()
	var p models.Posting
	require.NoError(t, db.First(&p, id).Error)
	return p.PlanoContaId
}

func accountsOf(t *testing.T, db *gorm.DB, empresaId int) []models.Account {
	t.Helper()
	var accs []models.Account
	require.NoError(t, db.Where("empresa_id = ?", empresaId).Order("id").Find(&accs).Error)
	return accs
}

// assertWellFormed checks the tree invariants for one tenant.
func assertWellFormed(t *testing.T, db *gorm.DB, empresaId int) {
	t.Helper()
	accs := accountsOf(t, db, empresaId)
	byID := map[int]models.Account{}
	codes := map[string]int{}
	children := map[int]int{}
	for _, a := range accs {
		byID[a.ID] = a
		if !a.IsLegacy() {
			codes[a.Code()]++
		}
		if a.ContaPaiId != nil {
			children[*a.ContaPaiId]++
		}
	}
	for code, n := range codes {
		assert.Equal(t, 1, n, "code %s repeated", code)
	}
	for _, a := range accs {
		if a.ContaPaiId != nil {
			parent := byID[*a.ContaPaiId]
			assert.Equal(t, parent.Level()+1, a.Level(), a.Nome)
			assert.True(t, strings.HasPrefix(a.Code(), parent.Code()+"."), a.Nome)
		}
		if a.Natureza == models.AccountNatureAnalytic {
			assert.Zero(t, children[a.ID], "analytic %s has children", a.Nome)
		}
		if a.IsSynthetic() {
			assert.Zero(t, testhelpers.Count(t, db, `SELECT COUNT(*) FROM lancamentos WHERE plano_conta_id = ?`, a.ID),
				"synthetic %s has postings", a.Nome)
		}
	}
}

// Scenario B
func TestTaxAccountGoesUnderTaxes(t *testing.T) {
	db := migratedDB(t)
	empresa := newCompany(t, db, "Alfa")
	acc := legacyAccount(t, db, empresa, "Simples Nacional", models.AccountKindOutflow)

	res := normalize(t, db)
	assert.Equal(t, 1, res.TenantsProcessed)
	assert.Equal(t, 1, res.AccountsReclassified)
	assert.Equal(t, 2, res.NodesCreated, "DESPESAS and Impostos only")

	got := reload(t, db, acc.ID)
	assert.Equal(t, "2.2.1", got.Code())
	assert.Equal(t, 3, got.Level())
	assert.Equal(t, models.AccountNatureAnalytic, got.Natureza)

	parent := reload(t, db, *got.ContaPaiId)
	assert.Equal(t, "2.2", parent.Code())
	assert.Equal(t, "Impostos", parent.Nome)
	assert.True(t, parent.IsSynthetic())

	operating, err := models.FindAccountByCode(context.Background(), db, empresa, "2.1")
	require.NoError(t, err)
	assert.Nil(t, operating, "subgroups are created on first need")
	assertWellFormed(t, db, empresa)
}

// Scenarios C, D and E
func TestOperatingAccountsAndRelink(t *testing.T) {
	db := migratedDB(t)
	empresa := newCompany(t, db, "Alfa")
	aluguel := legacyAccount(t, db, empresa, "Aluguel", models.AccountKindOutflow)
	energia := legacyAccount(t, db, empresa, "Energia", models.AccountKindOutflow)
	p1 := newPosting(t, db, empresa, "Aluguel", models.AccountKindOutflow, "1500.00")
	p2 := newPosting(t, db, empresa, "Mercado", models.AccountKindOutflow, "80.10")

	res := normalize(t, db)
	assert.Equal(t, 2, res.AccountsReclassified)
	assert.Equal(t, 2, res.FallbackClassifications)
	assert.Equal(t, 1, res.PostingsRelinked)
	assert.Equal(t, 1, res.PostingsUnmatched)
	assert.True(t, res.RelinkedAmount.Equal(decimal.RequireFromString("1500")))

	assert.Equal(t, "2.1.1", reload(t, db, aluguel.ID).Code())
	assert.Equal(t, "2.1.2", reload(t, db, energia.ID).Code())

	var linked models.Posting
	require.NoError(t, db.First(&linked, p1.ID).Error)
	require.NotNil(t, linked.PlanoContaId)
	assert.Equal(t, aluguel.ID, *linked.PlanoContaId)

	var unmatched models.Posting
	require.NoError(t, db.First(&unmatched, p2.ID).Error)
	assert.Nil(t, unmatched.PlanoContaId)
	assertWellFormed(t, db, empresa)

	accountsBefore := len(accountsOf(t, db, empresa))

	// Scenario E: everything a second time
	summary := runMigrations(t, db)
	assert.Zero(t, summary.ChangeCount())
	assert.Zero(t, summary.BackfilledRows())

	again := normalize(t, db)
	assert.Zero(t, again.NodesCreated)
	assert.Zero(t, again.AccountsReclassified)
	assert.Zero(t, again.PostingsRelinked)
	assert.Equal(t, 1, again.PostingsUnmatched)
	assert.Len(t, accountsOf(t, db, empresa), accountsBefore)
}

func TestRelinkPrefersPostingDirection(t *testing.T) {
	db := migratedDB(t)
	empresa := newCompany(t, db, "Alfa")
	jurosPagos := legacyAccount(t, db, empresa, "Juros", models.AccountKindOutflow)
	jurosRecebidos := legacyAccount(t, db, empresa, "Juros", models.AccountKindInflow)
	in := newPosting(t, db, empresa, "Juros", models.AccountKindInflow, "10")
	out := newPosting(t, db, empresa, "Juros", models.AccountKindOutflow, "20")

	res := normalize(t, db)
	assert.Equal(t, 2, res.PostingsRelinked)
	assert.Equal(t, "1.1.1", reload(t, db, jurosRecebidos.ID).Code())

	assert.Equal(t, &jurosRecebidos.ID, postingAccount(t, db, in.ID))
	assert.Equal(t, &jurosPagos.ID, postingAccount(t, db, out.ID))
}

func TestTenantsAreIsolated(t *testing.T) {
	db := migratedDB(t)
	alfa := newCompany(t, db, "Alfa")
	beta := newCompany(t, db, "Beta")
	aluguelAlfa := legacyAccount(t, db, alfa, "Aluguel", models.AccountKindOutflow)
	aluguelBeta := legacyAccount(t, db, beta, "Aluguel", models.AccountKindOutflow)
	legacyAccount(t, db, beta, "Folha de salários", models.AccountKindOutflow)
	pAlfa := newPosting(t, db, alfa, "Aluguel", models.AccountKindOutflow, "100")
	pBeta := newPosting(t, db, beta, "Aluguel", models.AccountKindOutflow, "200")

	res := normalize(t, db, workflow.WithWorkers(3))
	assert.Equal(t, 2, res.TenantsProcessed)

	assert.Equal(t, &aluguelAlfa.ID, postingAccount(t, db, pAlfa.ID))
	assert.Equal(t, &aluguelBeta.ID, postingAccount(t, db, pBeta.ID))

	// each tenant numbers its own tree
	assert.Equal(t, "2.1.1", reload(t, db, aluguelAlfa.ID).Code())
	assert.Equal(t, "2.1.1", reload(t, db, aluguelBeta.ID).Code())
	assertWellFormed(t, db, alfa)
	assertWellFormed(t, db, beta)
}

func TestFailingTenantDoesNotBlockOthers(t *testing.T) {
	db := migratedDB(t)
	alfa := newCompany(t, db, "Alfa")
	beta := newCompany(t, db, "Beta")
	aluguelAlfa := legacyAccount(t, db, alfa, "Aluguel", models.AccountKindOutflow)
	aluguelBeta := legacyAccount(t, db, beta, "Aluguel", models.AccountKindOutflow)

	testhelpers.MustExec(t, db, `CREATE TRIGGER plano_contas_bloqueio BEFORE UPDATE ON plano_contas
		WHEN NEW.empresa_id = `+strconv.Itoa(alfa)+` BEGIN SELECT RAISE(ABORT, 'bloqueado'); END`)

	res := normalize(t, db)
	assert.Equal(t, []int{alfa}, res.TenantsFailed)
	assert.Equal(t, 1, res.TenantsProcessed)
	assert.True(t, res.HasFailures())

	failed, ok := res.Tenant(alfa)
	require.True(t, ok)
	assert.ErrorContains(t, failed.Err, "bloqueado")
	var tenantErr *workflow.TenantError
	require.True(t, errors.As(failed.Err, &tenantErr))
	assert.Equal(t, alfa, tenantErr.EmpresaId)

	// the failed tenant's transaction rolled back, synthetic nodes included
	assert.True(t, reload(t, db, aluguelAlfa.ID).IsLegacy())
	assert.Len(t, accountsOf(t, db, alfa), 1)
	assert.Equal(t, "2.1.1", reload(t, db, aluguelBeta.ID).Code())
}

func TestDryRunChangesNothing(t *testing.T) {
	db := migratedDB(t)
	empresa := newCompany(t, db, "Alfa")
	acc := legacyAccount(t, db, empresa, "Aluguel", models.AccountKindOutflow)
	p := newPosting(t, db, empresa, "Aluguel", models.AccountKindOutflow, "100")

	res := normalize(t, db, workflow.WithDryRun(true))
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.AccountsReclassified)
	assert.Equal(t, 1, res.PostingsRelinked)
	assert.Equal(t, 2, res.NodesCreated)

	assert.True(t, reload(t, db, acc.ID).IsLegacy())
	assert.Len(t, accountsOf(t, db, empresa), 1)
	assert.Nil(t, postingAccount(t, db, p.ID))
}

func TestOnlySelectedTenantsAndUntypedAccounts(t *testing.T) {
	db := migratedDB(t)
	alfa := newCompany(t, db, "Alfa")
	beta := newCompany(t, db, "Beta")
	legacyAccount(t, db, alfa, "Aluguel", models.AccountKindOutflow)
	untouched := legacyAccount(t, db, beta, "Aluguel", models.AccountKindOutflow)
	testhelpers.MustExec(t, db, `INSERT INTO plano_contas (nome, tipo, empresa_id) VALUES ('Sem tipo', 'outro', ?)`, alfa)

	res := normalize(t, db, workflow.WithEmpresaIDs(alfa))
	assert.Equal(t, 1, res.TenantsProcessed)
	assert.Equal(t, 1, res.AccountsReclassified)
	assert.Equal(t, 1, res.AccountsSkipped)
	assert.True(t, reload(t, db, untouched.ID).IsLegacy())
}

// Scenario A, normalizer side: nothing to classify in an empty database.
func TestEmptyDatabaseHasNothingToNormalize(t *testing.T) {
	db := migratedDB(t)
	res := normalize(t, db)
	assert.Zero(t, res.TenantsProcessed)
	assert.Zero(t, res.AccountsReclassified)
	assert.Zero(t, res.NodesCreated)
	assert.True(t, res.RelinkedAmount.IsZero())
}

func TestClosedConnectionAbortsRun(t *testing.T) {
	db := migratedDB(t)
	alfa := newCompany(t, db, "Alfa")
	beta := newCompany(t, db, "Beta")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	logger, _ := testhelpers.NewLogger()
	res, err := workflow.NewNormalizer(db, workflow.WithLogger(logger), workflow.WithEmpresaIDs(alfa, beta)).
		Run(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsConnectionError(err))
	assert.Nil(t, res)
}

func TestConnectionLostMidRunStopsRemainingTenants(t *testing.T) {
	db := migratedDB(t)
	alfa := newCompany(t, db, "Alfa")
	beta := newCompany(t, db, "Beta")
	legacyAccount(t, db, alfa, "Aluguel", models.AccountKindOutflow)
	legacyAccount(t, db, beta, "Aluguel", models.AccountKindOutflow)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:drop_connection", func(tx *gorm.DB) {
		_ = sqlDB.Close()
		_ = tx.AddError(errors.New("conexão perdida"))
	}))

	logger, _ := testhelpers.NewLogger()
	res, err := workflow.NewNormalizer(db, workflow.WithLogger(logger), workflow.WithWorkers(1)).
		Run(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsConnectionError(err))

	require.NotNil(t, res)
	assert.True(t, res.Aborted)
	assert.Equal(t, []int{alfa}, res.TenantsFailed)
	_, started := res.Tenant(beta)
	assert.False(t, started, "no tenant starts after the connection is gone")
}
