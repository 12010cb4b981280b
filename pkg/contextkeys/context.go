package contextkeys

// contextKey is unexported so keys from other packages cannot collide.
type contextKey string

// DBContextKey stores the request scoped *gorm.DB in a context.Context.
const DBContextKey = contextKey("db")
