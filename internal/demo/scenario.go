// Package demo carries the PONTUS-X demonstration data set: three organisations
// playing consumer, subject and holder, a small catalogue and one user per role.
package demo

import (
	"encoding/json"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
)

// Fixed ids, shared with the SQL seed.
const (
	ConsumerOrgID = "01JBDX00000000000000000001"
	SubjectOrgID  = "01JBDX00000000000000000002"
	HolderOrgID   = "01JBDX00000000000000000003"

	ProductESGID     = "01JBDX000000000000000000P1"
	ProductFinanceID = "01JBDX000000000000000000P2"
	AssetESGID       = "01JBDX000000000000000000A1"
	AssetFinanceID   = "01JBDX000000000000000000A2"
	AssetArchivedID  = "01JBDX000000000000000000A3"
	ConsumerUserID   = "7a1d3c52-0000-4000-8000-000000000001"
	SubjectUserID    = "7a1d3c52-0000-4000-8000-000000000002"
	HolderUserID     = "7a1d3c52-0000-4000-8000-000000000003"
	OwnerUserID      = "7a1d3c52-0000-4000-8000-000000000004"
	UnassignedUserID = "7a1d3c52-0000-4000-8000-000000000005"
)

// Data is the complete demo set.
type Data struct {
	Organizations []dataspace.Organization
	Products      []dataspace.DataProduct
	Assets        []dataspace.DataAsset
	Users         []identity.User
	Memberships   []dataspace.Membership
	Roles         []dataspace.RoleAssignment
}

// Seeder accepts demo rows. store/memory implements it.
type Seeder interface {
	PutOrganization(dataspace.Organization)
	PutProduct(dataspace.DataProduct)
	PutAsset(dataspace.DataAsset)
	PutUser(identity.User)
	AddMembership(dataspace.Membership)
	AddRole(dataspace.RoleAssignment)
}

func Scenario() Data {
	return Data{
		Organizations: []dataspace.Organization{
			{ID: ConsumerOrgID, Name: "Industrias Alimentarias Navarra S.A.", TaxID: "A31000001", Type: dataspace.OrgConsumer},
			{ID: SubjectOrgID, Name: "Logística Ebro SL", TaxID: "B50000002", Type: dataspace.OrgProvider},
			{ID: HolderOrgID, Name: "Agencia de Datos del Ebro", TaxID: "Q50000003", Type: dataspace.OrgDataHolder},
		},
		Products: []dataspace.DataProduct{
			{
				ID: ProductESGID, Name: "Informe ESG de Proveedores", Category: "sostenibilidad", Version: "1.2",
				Description:      "Indicadores ambientales, sociales y de gobernanza por proveedor.",
				SchemaDefinition: json.RawMessage(`{"type":"object","properties":{"co2_tonnes":{"type":"number"},"esg_score":{"type":"integer"}}}`),
			},
			{
				ID: ProductFinanceID, Name: "Solvencia Financiera", Category: "finanzas", Version: "2.0",
				Description: "Ratios de liquidez y endeudamiento de los tres últimos ejercicios.",
			},
		},
		Assets: []dataspace.DataAsset{
			{ID: AssetESGID, ProductID: ProductESGID, SubjectOrgID: SubjectOrgID, HolderOrgID: HolderOrgID, Status: dataspace.AssetAvailable},
			{ID: AssetFinanceID, ProductID: ProductFinanceID, SubjectOrgID: SubjectOrgID, HolderOrgID: HolderOrgID, Status: dataspace.AssetRestricted,
				CustomMetadata: map[string]any{"ejercicios": []any{2022, 2023, 2024}}},
			{ID: AssetArchivedID, ProductID: ProductESGID, SubjectOrgID: SubjectOrgID, HolderOrgID: HolderOrgID, Status: dataspace.AssetArchived},
		},
		Users: []identity.User{
			{ID: ConsumerUserID, Email: "compras@alimentarias-navarra.es", FullName: "Ainhoa Goñi"},
			{ID: SubjectUserID, Email: "datos@logisticaebro.es", FullName: "Javier Lasheras"},
			{ID: HolderUserID, Email: "custodia@agenciadatosebro.es", FullName: "Marta Sancho"},
			{ID: OwnerUserID, Email: "owner@procuredata.io", FullName: "Equipo ProcureData"},
			{ID: UnassignedUserID, Email: "invitado@procuredata.io", FullName: "Usuario Invitado"},
		},
		Memberships: []dataspace.Membership{
			{UserID: ConsumerUserID, OrganizationID: ConsumerOrgID, FullName: "Ainhoa Goñi", Position: "Responsable de Compras"},
			{UserID: SubjectUserID, OrganizationID: SubjectOrgID, FullName: "Javier Lasheras", Position: "DPO"},
			{UserID: HolderUserID, OrganizationID: HolderOrgID, FullName: "Marta Sancho", Position: "Custodia de Datos"},
		},
		Roles: []dataspace.RoleAssignment{
			{UserID: OwnerUserID, Role: auth.RoleDataSpaceOwner},
			{UserID: ConsumerUserID, Role: auth.RoleViewer, OrganizationID: ConsumerOrgID},
			{UserID: SubjectUserID, Role: auth.RoleApprover, OrganizationID: SubjectOrgID},
			{UserID: HolderUserID, Role: auth.RoleApprover, OrganizationID: HolderOrgID},
		},
	}
}

// Load writes d into s. Organisations go first so memberships pick up their names.
func (d Data) Load(s Seeder) {
	for _, o := range d.Organizations {
		s.PutOrganization(o)
	}
	for _, p := range d.Products {
		s.PutProduct(p)
	}
	for _, a := range d.Assets {
		s.PutAsset(a)
	}
	for _, u := range d.Users {
		s.PutUser(u)
	}
	for _, m := range d.Memberships {
		s.AddMembership(m)
	}
	for _, r := range d.Roles {
		s.AddRole(r)
	}
}
