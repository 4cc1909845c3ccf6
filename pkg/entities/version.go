package entities

// Version is the release of the entity store.
const Version = "0.1.0"
