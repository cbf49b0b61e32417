package port

// MembershipPort discovers peers outside the DHT, used as extra bootstrap seeds.
type MembershipPort interface {
	// Join joins an existing cluster using a list of seed nodes.
	Join(seeds []string) error

	// Leave gracefully leaves the cluster.
	Leave() error

	// PeerAddrs returns the DHT addresses advertised by the other members.
	PeerAddrs() []string
}
