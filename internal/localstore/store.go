package localstore

// Storage is a string key-value store. Absent keys report ok=false.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}
