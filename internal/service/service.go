package service

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/config"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/qr"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// maxQRSize is the largest image edge length in pixels a client may ask for.
const maxQRSize = 2048

// Service answers the REST API calls on the person records.
type Service struct {
	// db is a handle to the database.
	db *sqlx.DB

	// insert is a prepared statement for creating a person on the database.
	insert *sqlx.NamedStmt

	// selectAll is a prepared statement for selecting all persons, newest first.
	selectAll *sqlx.Stmt

	// selectWhereId is a prepared statement for selecting persons with a given id.
	selectWhereId *sqlx.Stmt

	// update is a prepared statement for overwriting all mutable fields of a person.
	update *sqlx.NamedStmt

	// deleteWhereId is a prepared statement for deleting a person with a given id.
	deleteWhereId *sqlx.Stmt

	gate       *auth.Gate
	qr         qr.Generator
	logger     *slog.Logger
	now        func() time.Time
	ginLogging bool
}

// Options configures a Service.
type Options struct {
	// Driver is the database driver name, "postgres" or "mysql". It selects the bind variable
	// syntax of the prepared statements.
	Driver string
	// Gate decides whether mutating requests are allowed.
	Gate *auth.Gate
	// PublicBaseURL is the address the QR codes point to.
	PublicBaseURL string
	Logger        *slog.Logger
	GinLogging    bool
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// CreateDatabase initializes and returns a database connection with the configured driver and
// connection parameters.
func CreateDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return sqlDB, nil
}

// SetupDatabaseWrapper initializes the sqlx database wrapper with the specified sql database. It
// then prepares all statements. The database argument can be a real database for production use
// or a mock database within unit tests.
func SetupDatabaseWrapper(sqlDB *sql.DB, opts Options) (*Service, error) {
	if opts.Driver == "" {
		opts.Driver = config.DriverPostgres
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		db:         sqlx.NewDb(sqlDB, opts.Driver),
		gate:       opts.Gate,
		qr:         qr.Generator{BaseURL: opts.PublicBaseURL},
		logger:     opts.Logger.With("component", "service"),
		now:        opts.Now,
		ginLogging: opts.GinLogging,
	}

	// Prepared statements offer a significant speed increase if executed many times.
	var err error
	s.insert, err = s.db.PrepareNamed(`
		INSERT INTO persons (id, name, last_name, personal_code, phone_number, address,
			additional_info, disease_or_problem, status, emergency_note, created_at)
		VALUES (:id, :name, :last_name, :personal_code, :phone_number, :address,
			:additional_info, :disease_or_problem, :status, :emergency_note, :created_at)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	s.selectAll, err = s.db.Preparex(s.db.Rebind(`
		SELECT * FROM persons ORDER BY created_at DESC
	`))
	if err != nil {
		return nil, fmt.Errorf("preparing select all: %w", err)
	}
	s.selectWhereId, err = s.db.Preparex(s.db.Rebind(`
		SELECT * FROM persons WHERE id = ?
	`))
	if err != nil {
		return nil, fmt.Errorf("preparing select by id: %w", err)
	}
	// created_at is written once by insert and never updated.
	s.update, err = s.db.PrepareNamed(`
		UPDATE persons SET name = :name, last_name = :last_name, personal_code = :personal_code,
			phone_number = :phone_number, address = :address, additional_info = :additional_info,
			disease_or_problem = :disease_or_problem, status = :status, emergency_note = :emergency_note
		WHERE id = :id
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing update: %w", err)
	}
	s.deleteWhereId, err = s.db.Preparex(s.db.Rebind(`
		DELETE FROM persons WHERE id = ?
	`))
	if err != nil {
		return nil, fmt.Errorf("preparing delete: %w", err)
	}
	return s, nil
}

// Close releases the prepared statements and the database handle.
func (s *Service) Close() error {
	for _, stmt := range []interface{ Close() error }{s.insert, s.selectAll, s.selectWhereId, s.update, s.deleteWhereId} {
		stmt.Close()
	}
	return s.db.Close()
}

// SetupHttpRouter initializes the REST API router and registers all endpoints.
func (s *Service) SetupHttpRouter() *gin.Engine {
	var router *gin.Engine
	if s.ginLogging {
		router = gin.Default()
	} else {
		s.logger.Info("Turning off HTTP request logging.")
		router = gin.New()
		router.Use(gin.Recovery())
	}
	router.HandleMethodNotAllowed = true
	router.NoMethod(methodNotAllowed)
	// Ids are opaque and may contain an escaped slash, so routes match on the raw path.
	router.UseRawPath = true

	admin := auth.RequireAdmin(s.gate)
	router.GET("/persons", s.findPersons)
	router.POST("/persons", admin, s.createPerson)
	router.GET("/persons/:id", s.findPersonByID)
	router.PUT("/persons/:id", admin, s.updatePersonByID)
	router.DELETE("/persons/:id", admin, s.deletePersonByID)
	router.GET("/persons/:id/qr", s.findQRCodeByID)
	router.POST("/admin/login", s.login)
	return router
}

// methodNotAllowed answers requests whose path exists but not for the requested method.
func methodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}

// storageFailure logs a database error and answers with the error message.
func (s *Service) storageFailure(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// findPersons responds with the list of all persons as JSON, the most recently created first.
//
// REST API call:
//
//	> curl "http://localhost:8080/persons"
func (s *Service) findPersons(c *gin.Context) {
	persons := []model.Person{}
	if err := s.selectAll.SelectContext(c.Request.Context(), &persons); err != nil {
		s.storageFailure(c, "listing persons", err)
		return
	}
	c.IndentedJSON(http.StatusOK, persons)
}

// createPerson inserts the person specified in the request's JSON into the database. Optional
// fields that are absent or empty are stored as null. If the JSON carries no id or no createdAt,
// they are generated.
//
// Example REST API call:
//
//	> curl http://localhost:8080/persons --request "POST" --include --header "Content-Type: application/json" --header "X-Admin-Password: adminadmin" --data '{"id": "1", "name": "Erika", "lastName": "Mustermann", "personalCode": "PC1", "phoneNumber": "+49 0815 4711", "createdAt": "2024-01-01T00:00:00Z"}'
func (s *Service) createPerson(c *gin.Context) {
	var newPerson model.Person
	if err := c.ShouldBindJSON(&newPerson); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	now := s.now()
	if newPerson.ID == "" {
		newPerson.ID = model.NewID(now)
	}
	if newPerson.CreatedAt == "" {
		newPerson.CreatedAt = model.Timestamp(now)
	}
	newPerson.CreatedAt = model.CanonicalTimestamp(newPerson.CreatedAt)
	newPerson.Normalize()

	if _, err := s.insert.ExecContext(c.Request.Context(), &newPerson); err != nil {
		s.storageFailure(c, "creating person", err)
		return
	}
	s.logger.Info("person created", "id", newPerson.ID)
	c.IndentedJSON(http.StatusCreated, gin.H{"success": true})
}

// findPersonByID locates the person whose ID value matches the id parameter of the request URL,
// then returns that person as a response.
//
// Example REST API call:
//
//	> curl http://localhost:8080/persons/1704067200000-ab12cd34
func (s *Service) findPersonByID(c *gin.Context) {
	p, ok := s.lookup(c)
	if !ok {
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}

// lookup loads the person named by the id parameter. It answers the request itself and returns
// false if the person does not exist or the database fails.
func (s *Service) lookup(c *gin.Context) (model.Person, bool) {
	var persons []model.Person
	if err := s.selectWhereId.SelectContext(c.Request.Context(), &persons, c.Param("id")); err != nil {
		s.storageFailure(c, "finding person", err)
		return model.Person{}, false
	}
	if len(persons) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return model.Person{}, false
	}
	return persons[0], true
}

// updatePersonByID overwrites all mutable fields of the person whose ID value matches the id
// parameter of the request URL with the values of the JSON. Fields missing from the JSON are
// cleared, there is no merging with the stored values. The id and createdAt of the JSON are
// ignored.
//
// Example REST API call:
//
//	> curl http://localhost:8080/persons/1 --request "PUT" --include --header "Content-Type: application/json" --header "X-Admin-Password: adminadmin" --data '{"name": "Rudi", "lastName": "Völler", "personalCode": "PC1", "phoneNumber": "+49 1234567890"}'
func (s *Service) updatePersonByID(c *gin.Context) {
	var submitted model.Person
	if err := c.ShouldBindJSON(&submitted); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	submitted.ID = c.Param("id")
	submitted.Normalize()

	if _, err := s.update.ExecContext(c.Request.Context(), &submitted); err != nil {
		s.storageFailure(c, "updating person", err)
		return
	}
	s.logger.Info("person updated", "id", submitted.ID)
	c.IndentedJSON(http.StatusOK, gin.H{"success": true})
}

// deletePersonByID deletes the person whose ID value matches the id parameter of the request URL
// from the database. Deleting an unknown id succeeds as well.
//
// Example REST API call:
//
//	> curl http://localhost:8080/persons/1 --request "DELETE" --header "X-Admin-Password: adminadmin"
func (s *Service) deletePersonByID(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deleteWhereId.ExecContext(c.Request.Context(), id); err != nil {
		s.storageFailure(c, "deleting person", err)
		return
	}
	s.logger.Info("person deleted", "id", id)
	c.IndentedJSON(http.StatusOK, gin.H{"success": true})
}

// findQRCodeByID responds with a PNG image of the QR code that leads to the public view page of
// the person. The optional URL parameter 'size' sets the edge length in pixels.
//
// Example REST API call:
//
//	> curl "http://localhost:8080/persons/1/qr?size=512" --output qr.png
func (s *Service) findQRCodeByID(c *gin.Context) {
	size := qr.DefaultSize
	if sizeParam := c.Query("size"); sizeParam != "" {
		sizeAsInt, errConv := strconv.Atoi(sizeParam)
		if errConv != nil || sizeAsInt < 1 || sizeAsInt > maxQRSize {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid size parameter"})
			return
		}
		size = sizeAsInt
	}
	p, ok := s.lookup(c)
	if !ok {
		return
	}
	png, err := s.qr.PNG(p.ID, size)
	if err != nil {
		s.storageFailure(c, "rendering QR code", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, qr.FileName(p, s.now())))
	c.Data(http.StatusOK, "image/png", png)
}

// loginRequest is the body of a login call.
type loginRequest struct {
	Password string `json:"password"`
}

// login checks the submitted password against the admin secret.
//
// Example REST API call:
//
//	> curl http://localhost:8080/admin/login --request "POST" --data '{"password": "adminadmin"}'
func (s *Service) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if !s.gate.Check(req.Password) {
		s.logger.Warn("failed admin login", "client", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Incorrect password"})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"success": true})
}
