package integrations

// Provider is the capability descriptor one Widget is parameterized by.
type Provider struct {
	ID          ProviderID
	Name        string // display name, also written to Params.Type
	Description string
	// LoadEndpoint is the path segment after /integrations/{id}/ that returns items.
	LoadEndpoint string
}

// DefaultLoadEndpoint is the load path segment every provider uses unless configured otherwise.
const DefaultLoadEndpoint = "load"

// providerCatalog is the built-in set of providers.
var providerCatalog = map[ProviderID]Provider{
	ProviderNotion: {
		ID:           ProviderNotion,
		Name:         "Notion",
		Description:  "Pages and databases from a Notion workspace",
		LoadEndpoint: DefaultLoadEndpoint,
	},
	ProviderAirtable: {
		ID:           ProviderAirtable,
		Name:         "Airtable",
		Description:  "Bases and tables from Airtable",
		LoadEndpoint: DefaultLoadEndpoint,
	},
	ProviderHubSpot: {
		ID:           ProviderHubSpot,
		Name:         "HubSpot",
		Description:  "CRM contacts from HubSpot",
		LoadEndpoint: DefaultLoadEndpoint,
	},
}

// LookupProvider returns the built-in descriptor for id.
func LookupProvider(id ProviderID) (Provider, bool) {
	p, ok := providerCatalog[id]
	return p, ok
}

// BuiltinProviders returns the built-in providers in display order.
func BuiltinProviders() []Provider {
	return []Provider{
		providerCatalog[ProviderNotion],
		providerCatalog[ProviderAirtable],
		providerCatalog[ProviderHubSpot],
	}
}
