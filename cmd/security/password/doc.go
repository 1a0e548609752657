// Package password turns plaintext secrets into salted Argon2id digests and
// verifies them in constant time.
//
// Digests use the PHC string format
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
//
// so every digest carries its own salt and cost factor: the cost can be
// retuned through configuration without invalidating stored records.
//
// Digests are treated as untrusted input during Verify. Verification refuses
// parameters far above the configured cost to bound the work a corrupted or
// hostile digest can cause.
package password
