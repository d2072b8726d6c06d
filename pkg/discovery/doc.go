// Package discovery locates corelink service endpoints on the local
// network via mDNS.
//
// Services advertise themselves under the _corelink._tcp service type
// with TXT records carrying the service identity and the protocol
// versions it speaks. Clients browse for those records to fill in the
// local transport's address instead of configuring it by hand.
package discovery
