// Package identity owns the credential record: the durable
// {identity, secret hash, metadata} row and the lifecycle guard that decides
// when the hasher runs.
//
// The only code path that hashes a secret is Credentials.apply, reached from
// Register and ChangeSecret. Profile updates carry no secret field at all, so
// an unrelated update cannot re-hash an unchanged or already-hashed value.
//
// Persistence goes through Store. MemoryStore serves development and tests;
// PostgresStore is the production backend with its schema under migrations/.
package identity
