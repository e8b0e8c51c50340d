// Package peers keeps the address book of the share network.
//
// Addresses are learnt from addrme and addrs gossip and from the seed list.
// An entry is created on the first sighting and only moves forward in time
// afterwards: first_seen never changes and last_seen never goes back. The
// node also records dial failures against entries to drive its backoff.
//
// Operators can list extra seeds in a seeds.json file in the data directory,
// as a JSON array of "host:port" strings.
package peers
