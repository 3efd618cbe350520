// Package password owns credential hashing and the platform password
// policy: bcrypt for storage, rule-based strength validation, and random
// generation for provisioning-time admin identities.
package password
