// Package identity owns users, authentication and role permissions.
//
// Authentication is password + JWT: Login verifies the bcrypt hash and
// issues a signed access token carrying the user's email, role and tenant
// id. Password resets use short-lived HMAC payload tokens; the same token
// doubles as the activation link in provisioning invitations.
//
// Role permissions are per-tenant rows seeded from a fixed catalog during
// provisioning. Can answers page/action checks for a role; SuperAdmin
// short-circuits every check and never has permission rows.
package identity
