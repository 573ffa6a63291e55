// Package bursar is the subscription billing and entitlement core of a
// multi-tenant school platform.
//
// Bursar is a library, not a service. It owns three pieces of logic:
//
//   - the invoice lifecycle (draft, issued, overdue, paid, void)
//   - idempotent reconciliation of payment gateway events into payments
//     and, through them, paid invoices
//   - entitlement resolution from a versioned edition catalog, plus the
//     per-tenant module grants that plans push when they change
//
// Transport, persistence and gateways sit behind ports: see the store,
// gateway and api packages.
//
// # Quick Start
//
//	s := memory.New()
//	b := bursar.New(s,
//	    bursar.WithCatalog(catalog.Default()),
//	    bursar.WithGateway(stripe.New(stripe.Config{SecretKey: key, WebhookSecret: whsec})),
//	)
//	if err := b.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Stop(ctx)
//
// # Entitlements
//
// A tenant references an edition by id, or by a code stored under
// tenant.MetadataEditionCode. ResolveEntitlements returns a snapshot holding
// every known module and feature key:
//
//	snap, err := b.ResolveEntitlements(ctx, "school-42")
//	if snap.RequiresEditionSelection {
//	    // prompt an administrator to pick an edition
//	}
//
// # Invoices and payments
//
//	inv, err := b.CreateInvoice(ctx, bursar.CreateInvoiceInput{...})
//	inv, err = b.IssueInvoice(ctx, inv.TenantID, inv.ID)
//
// Gateway webhooks are passed raw to HandleWebhook. Once the succeeded
// payments linked to an invoice cover its total, the invoice is marked
// paid.
//
// # Plugins
//
// Lifecycle hooks are delivered to plugins registered with WithPlugin; see
// the audit_hook and observability packages.
package bursar
