// Package integration contains the ports to the external billing service.
//
// Key concepts:
//   - BillingService: invoice listing plus order, customer and invoice lookups
//   - PaymentProcessor: per-invoice payment history reported by the processor
//   - InvoiceCreator: the replacement-invoice path used during supersession
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) and the validated payload structs are defined here
//   - Adapters (implementations) are in the infrastructure layer
package integration
