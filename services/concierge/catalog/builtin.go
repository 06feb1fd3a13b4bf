// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"sync"

	"github.com/AleutianAI/AleutianSupport/services/concierge/backends"
)

// BuildDefault registers the standard retrieval strategies against one
// tenant's corpus view. This is the full deployment catalog; per-tenant
// enable/disable happens via Restrict at session start.
func BuildDefault(corpus *backends.Corpus, tenantID string) *Catalog {
	c := New()

	c.Register("search_content",
		"Semantic search over the tenant's help articles and pages. Use for "+
			"how-to, policy and general questions.",
		ParamSchema{
			"limit": {Type: TypeInt,
				Description: "Maximum number of results (default 10, max 50)."},
			"min_score": {Type: TypeNumber,
				Description: "Minimum relevance score in [0,1]; weaker hits are dropped."},
		},
		backends.NewContentSearchBackend(corpus, tenantID))

	c.Register("search_category",
		"Keyword search restricted to one content category, e.g. shipping, "+
			"returns, billing. Use when the question clearly belongs to a topic.",
		ParamSchema{
			"category": {Type: TypeString, Required: true,
				Description: "Category name to search within."},
			"limit": {Type: TypeInt,
				Description: "Maximum number of results (default 10, max 50)."},
		},
		backends.NewCategorySearchBackend(corpus, tenantID))

	c.Register("lookup_entity",
		"Exact lookup of a named thing: a product, a plan, a location. Use "+
			"when the customer names something specific.",
		ParamSchema{
			"entity": {Type: TypeString, Required: true,
				Description: "The entity name, as close to the customer's wording as possible."},
			"limit": {Type: TypeInt,
				Description: "Maximum number of results (default 10, max 50)."},
		},
		backends.NewEntityLookupBackend(corpus, tenantID))

	c.Register("search_products",
		"Search the product catalog, optionally filtered by features such "+
			"as color or size. Use for availability and product-detail questions.",
		ParamSchema{
			"features": {Type: TypeStringList,
				Description: "Feature terms to filter by, e.g. [\"blue\", \"waterproof\"]."},
			"limit": {Type: TypeInt,
				Description: "Maximum number of results (default 10, max 50)."},
		},
		backends.NewProductSearchBackend(corpus, tenantID))

	return c
}

// TenantCatalogs builds and caches the default catalog per tenant.
//
// Thread Safety: safe for concurrent use.
type TenantCatalogs struct {
	corpus *backends.Corpus

	mu    sync.RWMutex
	cache map[string]*Catalog
}

// NewTenantCatalogs creates a provider over one corpus.
func NewTenantCatalogs(corpus *backends.Corpus) *TenantCatalogs {
	return &TenantCatalogs{
		corpus: corpus,
		cache:  make(map[string]*Catalog),
	}
}

// CatalogFor returns the deployment catalog for a tenant, building it on
// first use.
func (t *TenantCatalogs) CatalogFor(tenantID string) *Catalog {
	t.mu.RLock()
	c, ok := t.cache[tenantID]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.cache[tenantID]; ok {
		return c
	}
	c = BuildDefault(t.corpus, tenantID)
	t.cache[tenantID] = c
	return c
}
