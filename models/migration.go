package models

import (
	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

// tenantScoped are the tables whose rows belong to one empresa through the
// user that created them.
var tenantScoped = []string{
	"plano_contas", "contas_caixa", "clientes", "fornecedores",
	"lancamentos", "vendas", "compras",
}

func createdAt() schema.ColumnDef {
	return schema.Col("created_at", schema.TypeTimestamp).WithDefault(schema.CurrentTimestamp)
}

func active() schema.ColumnDef {
	return schema.Col("ativo", schema.TypeBoolean).Required().WithDefault(true)
}

func money(name string) schema.ColumnDef {
	return schema.Decimal(name, 15, 2)
}

// FinanceiroSteps is the ordered schema history of the Financeiro database.
// Append new steps at the end; never edit or reorder a published step.
func FinanceiroSteps() []migrator.Step {
	steps := []migrator.Step{
		{
			ID:          "001_base_empresas_usuarios_planos",
			Description: "core tenant, user and plan tables",
			Critical:    true,
			Targets: []schema.Target{
				schema.TableTarget("empresas",
					schema.ID(),
					schema.Varchar("nome", 150).Required(),
					schema.Varchar("cnpj", 18),
					schema.Varchar("email", 150),
					active(),
					createdAt(),
				),
				schema.TableTarget("planos",
					schema.ID(),
					schema.Varchar("nome", 100).Required(),
					money("preco").Required().WithDefault(0),
					schema.Col("limite_usuarios", schema.TypeInteger).Required().WithDefault(1),
					active(),
					createdAt(),
				),
				schema.TableTarget("usuarios",
					schema.ID(),
					schema.Varchar("nome", 100).Required(),
					schema.Varchar("email", 150).Required(),
					schema.Varchar("senha_hash", 255),
					schema.Col("is_admin", schema.TypeBoolean).Required().WithDefault(false),
					active(),
					createdAt(),
				),
			},
		},
		{
			ID:          "002_base_cadastros",
			Description: "user-scoped registers: chart of accounts, cash accounts, clients, suppliers",
			Critical:    true,
			Targets: []schema.Target{
				schema.TableTarget("plano_contas",
					schema.ID(),
					schema.Varchar("nome", 100).Required(),
					schema.Varchar("tipo", 10).Required(),
					schema.Ref("usuario_id", "usuarios"),
					createdAt(),
				),
				schema.TableTarget("contas_caixa",
					schema.ID(),
					schema.Varchar("nome", 100).Required(),
					schema.Varchar("tipo", 20).Required().WithDefault(string(CashAccountTypeCash)),
					money("saldo_inicial").Required().WithDefault(0),
					active(),
					schema.Ref("usuario_id", "usuarios"),
					createdAt(),
				),
				contactTable("clientes"),
				contactTable("fornecedores"),
			},
		},
		{
			ID:          "003_base_movimentos",
			Description: "postings, sales and purchases",
			Critical:    true,
			Targets: []schema.Target{
				schema.TableTarget("lancamentos",
					schema.ID(),
					schema.Varchar("descricao", 255),
					money("valor").Required(),
					schema.Varchar("tipo", 10).Required(),
					schema.Varchar("categoria", 100),
					schema.Col("data", schema.TypeDate).Required(),
					schema.Ref("usuario_id", "usuarios"),
					createdAt(),
				),
				schema.TableTarget("vendas",
					schema.ID(),
					schema.Varchar("descricao", 255),
					money("valor").Required(),
					schema.Col("data", schema.TypeDate).Required(),
					schema.Ref("cliente_id", "clientes"),
					schema.Ref("usuario_id", "usuarios"),
					createdAt(),
				),
				schema.TableTarget("compras",
					schema.ID(),
					schema.Varchar("descricao", 255),
					money("valor").Required(),
					schema.Col("data", schema.TypeDate).Required(),
					schema.Ref("fornecedor_id", "fornecedores"),
					schema.Ref("usuario_id", "usuarios"),
					createdAt(),
				),
			},
		},
		{
			ID:          "004_usuarios_empresa",
			Description: "users belong to a company",
			Critical:    true,
			Targets:     []schema.Target{schema.ColumnTarget("usuarios", schema.Ref("empresa_id", "empresas"))},
			Indexes:     []schema.IndexDef{schema.Index("idx_usuarios_empresa_id", "usuarios", "empresa_id")},
		},
		{
			ID:          "005_empresas_assinatura",
			Description: "subscription plan and period on the company",
			Targets: []schema.Target{
				schema.ColumnTarget("empresas", schema.Ref("plano_id", "planos")),
				schema.ColumnTarget("empresas", schema.Col("data_inicio_assinatura", schema.TypeTimestamp)),
				schema.ColumnTarget("empresas", schema.Col("data_fim_assinatura", schema.TypeTimestamp)),
			},
			Backfills: []migrator.Backfill{
				migrator.CopyColumn{Table: "empresas", Column: "data_inicio_assinatura", From: "created_at"},
			},
		},
		tenantScopeStep(),
		{
			ID:          "007_plano_contas_hierarquia",
			Description: "hierarchical chart of accounts: code, nature, level and parent",
			Targets: []schema.Target{
				schema.ColumnTarget("plano_contas", active()),
				schema.ColumnTarget("plano_contas", schema.Varchar("codigo", 20)),
				schema.ColumnTarget("plano_contas", schema.Varchar("natureza", 10)),
				schema.ColumnTarget("plano_contas", schema.Col("nivel", schema.TypeInteger)),
				schema.ColumnTarget("plano_contas", schema.Ref("conta_pai_id", "plano_contas")),
			},
			Indexes: []schema.IndexDef{
				schema.UniqueIndex("idx_plano_contas_empresa_codigo", "plano_contas", "empresa_id", "codigo"),
				schema.Index("idx_plano_contas_conta_pai_id", "plano_contas", "conta_pai_id"),
			},
			Backfills: []migrator.Backfill{
				migrator.SetValue{Table: "plano_contas", Column: "natureza", Value: string(AccountNatureAnalytic)},
			},
		},
		{
			ID:          "008_lancamentos_vinculos",
			Description: "structural links from postings to account, cash account, counterparties and transfers",
			Targets: []schema.Target{
				schema.ColumnTarget("lancamentos", schema.Ref("plano_conta_id", "plano_contas")),
				schema.ColumnTarget("lancamentos", schema.Ref("conta_caixa_id", "contas_caixa")),
				// uuid shared by both legs of a transfer between cash accounts
				schema.ColumnTarget("lancamentos", schema.Varchar("transferencia_id", 36)),
				schema.ColumnTarget("lancamentos", schema.Ref("cliente_id", "clientes")),
				schema.ColumnTarget("lancamentos", schema.Ref("fornecedor_id", "fornecedores")),
			},
			Indexes: []schema.IndexDef{
				schema.Index("idx_lancamentos_plano_conta_id", "lancamentos", "plano_conta_id"),
				schema.Index("idx_lancamentos_transferencia_id", "lancamentos", "transferencia_id"),
			},
		},
		{
			ID:          "009_vouchers",
			Description: "plan vouchers",
			Targets: []schema.Target{
				schema.TableTarget("vouchers",
					schema.ID(),
					schema.Varchar("codigo", 40).Required(),
					schema.Ref("plano_id", "planos"),
					schema.Col("dias_validade", schema.TypeInteger).Required().WithDefault(30),
					schema.Col("usado", schema.TypeBoolean).Required().WithDefault(false),
					schema.Ref("empresa_id", "empresas"),
					schema.Col("usado_em", schema.TypeTimestamp),
					createdAt(),
				),
			},
			Indexes: []schema.IndexDef{schema.UniqueIndex("idx_vouchers_codigo", "vouchers", "codigo")},
		},
		{
			ID:          "010_vendas_compras_vinculos",
			Description: "sales and purchases point at their cash account and generated posting",
			Targets: []schema.Target{
				schema.ColumnTarget("vendas", schema.Ref("conta_caixa_id", "contas_caixa")),
				schema.ColumnTarget("vendas", schema.Ref("lancamento_id", "lancamentos")),
				schema.ColumnTarget("compras", schema.Ref("conta_caixa_id", "contas_caixa")),
				schema.ColumnTarget("compras", schema.Ref("lancamento_id", "lancamentos")),
			},
		},
		{
			ID:          "011_indices_relatorios",
			Description: "reporting indexes",
			Indexes: []schema.IndexDef{
				schema.Index("idx_lancamentos_empresa_data", "lancamentos", "empresa_id", "data"),
				schema.Index("idx_vendas_empresa_data", "vendas", "empresa_id", "data"),
				schema.Index("idx_compras_empresa_data", "compras", "empresa_id", "data"),
				schema.UniqueIndex("idx_usuarios_email", "usuarios", "email"),
			},
		},
		tenantNotNullStep(),
	}
	return steps
}

func contactTable(name string) schema.Target {
	return schema.TableTarget(name,
		schema.ID(),
		schema.Varchar("nome", 150).Required(),
		schema.Varchar("documento", 18),
		schema.Varchar("email", 150),
		schema.Varchar("telefone", 20),
		schema.Ref("usuario_id", "usuarios"),
		createdAt(),
	)
}

// tenantScopeStep adds empresa_id to every user-scoped table and fills it
// through the owning user.
func tenantScopeStep() migrator.Step {
	step := migrator.Step{
		ID:          "006_escopo_empresa",
		Description: "tenant scope on user-scoped tables, backfilled through usuarios.empresa_id",
	}
	for _, table := range tenantScoped {
		step.Targets = append(step.Targets, schema.ColumnTarget(table, schema.Ref("empresa_id", "empresas")))
		step.Indexes = append(step.Indexes, schema.Index("idx_"+table+"_empresa_id", table, "empresa_id"))
		step.Backfills = append(step.Backfills, migrator.JoinValue{
			Table:      table,
			Column:     "empresa_id",
			ForeignKey: "usuario_id",
			RefTable:   "usuarios",
			RefColumn:  "empresa_id",
		})
	}
	return step
}

// tenantNotNullStep tightens empresa_id once every row has been backfilled.
// Rows that could not be attributed keep the constraint deferred.
func tenantNotNullStep() migrator.Step {
	step := migrator.Step{
		ID:          "012_escopo_empresa_obrigatorio",
		Description: "empresa_id NOT NULL after backfill",
	}
	for _, table := range tenantScoped {
		step.Constraints = append(step.Constraints, schema.NotNull(table, schema.Ref("empresa_id", "empresas")))
	}
	return step
}
