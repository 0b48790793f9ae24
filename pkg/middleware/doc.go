// Package middleware provides HTTP middleware for tenant-aware applications
// built on the tenancy subsystem.
//
// TenantMiddleware resolves the organization addressed by the request path,
// binds it to the request context and rejects cross-tenant rebinds. The
// quota and activity middlewares sit behind it and read the bound tenant
// from the context.
//
// The ops daemon does not use these; they are for embedding applications
// that serve tenant-facing routes.
package middleware
