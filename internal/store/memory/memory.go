// Package memory is an in-process implementation of every domain store. It
// backs DATA_BACKEND=memory and the HTTP tests. One mutex guards all state, so
// each method is a transaction.
package memory

import (
	"context"
	"sort"
	"sync"

	"coaching/internal/attendance"
	"coaching/internal/auth"
	"coaching/internal/catalog"
	"coaching/internal/directory"
	"coaching/internal/ledger"
)

type eventKey struct {
	student, subject, batch, date string
}

// Store holds all records in maps.
type Store struct {
	mu sync.Mutex

	users    map[string]directory.User // by email
	admins   map[string]bool
	students map[string]directory.Student
	teachers map[string]directory.Teacher

	payments []ledger.Payment
	byKey    map[string]int
	salary   map[string]map[ledger.YearMonth]ledger.SalaryPayment
	seq      map[string]int64

	daily  map[string]map[string]attendance.Status
	events []attendance.Event
	evIdx  map[eventKey]int

	docs map[string]map[string]catalog.Raw
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]directory.User),
		admins:   make(map[string]bool),
		students: make(map[string]directory.Student),
		teachers: make(map[string]directory.Teacher),
		byKey:    make(map[string]int),
		salary:   make(map[string]map[ledger.YearMonth]ledger.SalaryPayment),
		seq:      make(map[string]int64),
		daily:    make(map[string]map[string]attendance.Status),
		evIdx:    make(map[eventKey]int),
		docs:     make(map[string]map[string]catalog.Raw),
	}
}

// Ledger.

func (s *Store) ApplyPayment(_ context.Context, p ledger.Payment) (ledger.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[p.IdempotencyKey]; ok {
		existing := s.payments[i]
		st := s.students[existing.StudentID]
		return ledger.Receipt{Payment: existing, Fees: st.Fees, Replayed: true}, nil
	}
	st, ok := s.students[p.StudentID]
	if !ok {
		return ledger.Receipt{}, ledger.ErrStudentNotFound
	}
	st.Fees.Paid += p.Amount
	s.students[p.StudentID] = st
	s.byKey[p.IdempotencyKey] = len(s.payments)
	s.payments = append(s.payments, p)
	return ledger.Receipt{Payment: p, Fees: st.Fees}, nil
}

func (s *Store) StudentFees(_ context.Context, studentID string) (ledger.Fees, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return ledger.Fees{}, ledger.ErrStudentNotFound
	}
	return st.Fees, nil
}

func (s *Store) ListPayments(_ context.Context, studentID string) ([]ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []ledger.Payment
	for i := len(s.payments) - 1; i >= 0; i-- {
		if s.payments[i].StudentID == studentID {
			res = append(res, s.payments[i])
		}
	}
	return res, nil
}

func (s *Store) PaymentByKey(_ context.Context, key string) (ledger.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return ledger.Payment{}, false, nil
	}
	return s.payments[i], true, nil
}

func (s *Store) MonthlySalary(_ context.Context, teacherID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[teacherID]
	if !ok {
		return 0, ledger.ErrTeacherNotFound
	}
	return t.MonthlySalary, nil
}

func (s *Store) InsertSalaryPayment(_ context.Context, sp ledger.SalaryPayment) (ledger.SalaryPayment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teachers[sp.TeacherID]; !ok {
		return ledger.SalaryPayment{}, false, ledger.ErrTeacherNotFound
	}
	months := s.salary[sp.TeacherID]
	if months == nil {
		months = make(map[ledger.YearMonth]ledger.SalaryPayment)
		s.salary[sp.TeacherID] = months
	}
	if existing, ok := months[sp.Month]; ok {
		return existing, false, nil
	}
	months[sp.Month] = sp
	return sp, true, nil
}

func (s *Store) ListSalaryPayments(_ context.Context, teacherID string) ([]ledger.SalaryPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]ledger.SalaryPayment, 0, len(s.salary[teacherID]))
	for _, sp := range s.salary[teacherID] {
		res = append(res, sp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Month > res[j].Month })
	return res, nil
}

func (s *Store) NextSequence(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[name]++
	return s.seq[name], nil
}

func (s *Store) SeedSequence(_ context.Context, name string, atLeast int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq[name] < atLeast {
		s.seq[name] = atLeast
	}
	return nil
}

// Attendance.

func (s *Store) UpsertDaily(_ context.Context, studentID, date string, status attendance.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[studentID]; !ok {
		return attendance.ErrStudentNotFound
	}
	if s.daily[studentID] == nil {
		s.daily[studentID] = make(map[string]attendance.Status)
	}
	s.daily[studentID][date] = status
	return nil
}

func (s *Store) DailyMarks(_ context.Context, studentID string) (map[string]attendance.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]attendance.Status, len(s.daily[studentID]))
	for d, st := range s.daily[studentID] {
		out[d] = st
	}
	return out, nil
}

func (s *Store) UpsertEvents(_ context.Context, events []attendance.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if _, ok := s.students[e.StudentID]; !ok {
			return attendance.ErrStudentNotFound
		}
	}
	for _, e := range events {
		k := eventKey{e.StudentID, e.SubjectCode, e.Batch, e.Date}
		if i, ok := s.evIdx[k]; ok {
			e.ID = s.events[i].ID
			s.events[i] = e
			continue
		}
		if e.ID == "" {
			e.ID = e.StudentID + "/" + e.SubjectCode + "/" + e.Batch + "/" + e.Date
		}
		s.evIdx[k] = len(s.events)
		s.events = append(s.events, e)
	}
	return nil
}

func (s *Store) StudentEvents(_ context.Context, studentID string) ([]attendance.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []attendance.Event
	for _, e := range s.events {
		if e.StudentID == studentID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (s *Store) BatchEvents(_ context.Context, batch, since string) ([]attendance.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []attendance.Event
	for _, e := range s.events {
		if e.Batch == batch && e.Date >= since {
			res = append(res, e)
		}
	}
	return res, nil
}

func (s *Store) TeacherBatch(_ context.Context, teacherID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[teacherID]
	if !ok {
		return "", attendance.ErrTeacherNotFound
	}
	return t.Batch, nil
}

func (s *Store) StudentsInBatch(_ context.Context, batch string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, st := range s.sortedStudents() {
		if st.Batch == batch {
			ids = append(ids, st.ID)
		}
	}
	return ids, nil
}

func (s *Store) StudentExists(_ context.Context, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.students[studentID]
	return ok, nil
}

// Directory.

func (s *Store) emailTaken(email string) bool {
	if _, ok := s.users[email]; ok {
		return true
	}
	return false
}

func (s *Store) CreateStudentAccount(_ context.Context, u directory.User, st directory.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(u.Email) {
		return directory.ErrEmailTaken
	}
	for _, other := range s.students {
		if other.Email == st.Email {
			return directory.ErrEmailTaken
		}
	}
	s.users[u.Email] = u
	s.students[st.ID] = st
	return nil
}

func (s *Store) CreateTeacherAccount(_ context.Context, u directory.User, t directory.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(u.Email) {
		return directory.ErrEmailTaken
	}
	for _, other := range s.teachers {
		if other.Email == t.Email {
			return directory.ErrEmailTaken
		}
	}
	s.users[u.Email] = u
	s.teachers[t.ID] = t
	return nil
}

func (s *Store) CreateUser(_ context.Context, u directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(u.Email) {
		return directory.ErrEmailTaken
	}
	s.users[u.Email] = u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return directory.User{}, directory.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) SetUserRole(_ context.Context, userID string, role auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID == userID {
			u.Role = role
			s.users[email] = u
			return nil
		}
	}
	return directory.ErrUserNotFound
}

func (s *Store) IsAdminEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[email], nil
}

func (s *Store) AddAdminEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[email] = true
	return nil
}

func (s *Store) Student(_ context.Context, id string) (directory.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return directory.Student{}, directory.ErrStudentNotFound
	}
	return st, nil
}

func (s *Store) StudentByEmail(_ context.Context, email string) (directory.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.Email == email {
			return st, nil
		}
	}
	return directory.Student{}, directory.ErrStudentNotFound
}

func (s *Store) sortedStudents() []directory.Student {
	list := make([]directory.Student, 0, len(s.students))
	for _, st := range s.students {
		list = append(list, st)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

func (s *Store) ListStudents(_ context.Context, f directory.StudentFilter) ([]directory.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []directory.Student
	for _, st := range s.sortedStudents() {
		if (f.Batch == "" || st.Batch == f.Batch) && (f.Course == "" || st.Course == f.Course) {
			res = append(res, st)
		}
	}
	return res, nil
}

func (s *Store) UpdateStudent(_ context.Context, st directory.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.students[st.ID]
	if !ok {
		return directory.ErrStudentNotFound
	}
	st.Fees.Paid = cur.Fees.Paid
	s.students[st.ID] = st
	return nil
}

func (s *Store) DeleteStudent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return directory.ErrStudentNotFound
	}
	delete(s.students, id)
	delete(s.daily, id)
	if u, ok := s.users[st.Email]; ok && u.Role == auth.RoleStudent {
		delete(s.users, st.Email)
	}

	payments := s.payments[:0]
	s.byKey = make(map[string]int)
	for _, p := range s.payments {
		if p.StudentID != id {
			s.byKey[p.IdempotencyKey] = len(payments)
			payments = append(payments, p)
		}
	}
	s.payments = payments

	events := s.events[:0]
	s.evIdx = make(map[eventKey]int)
	for _, e := range s.events {
		if e.StudentID != id {
			s.evIdx[eventKey{e.StudentID, e.SubjectCode, e.Batch, e.Date}] = len(events)
			events = append(events, e)
		}
	}
	s.events = events
	return nil
}

func (s *Store) StudentCodes(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.students))
	for _, st := range s.students {
		codes = append(codes, st.Code)
	}
	return codes, nil
}

func (s *Store) Teacher(_ context.Context, id string) (directory.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok {
		return directory.Teacher{}, directory.ErrTeacherNotFound
	}
	return t, nil
}

func (s *Store) TeacherByEmail(_ context.Context, email string) (directory.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teachers {
		if t.Email == email {
			return t, nil
		}
	}
	return directory.Teacher{}, directory.ErrTeacherNotFound
}

func (s *Store) ListTeachers(context.Context) ([]directory.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]directory.Teacher, 0, len(s.teachers))
	for _, t := range s.teachers {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (s *Store) UpdateTeacher(_ context.Context, t directory.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teachers[t.ID]; !ok {
		return directory.ErrTeacherNotFound
	}
	s.teachers[t.ID] = t
	return nil
}

func (s *Store) DeleteTeacher(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok {
		return directory.ErrTeacherNotFound
	}
	delete(s.teachers, id)
	delete(s.salary, id)
	if u, ok := s.users[t.Email]; ok && u.Role == auth.RoleTeacher {
		delete(s.users, t.Email)
	}
	return nil
}

func (s *Store) TeacherCodes(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.teachers))
	for _, t := range s.teachers {
		codes = append(codes, t.Code)
	}
	return codes, nil
}

// Catalog.

func (s *Store) PutDocument(_ context.Context, collection string, doc catalog.Raw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]catalog.Raw)
	}
	doc.Body = append([]byte(nil), doc.Body...)
	s.docs[collection][doc.ID] = doc
	return nil
}

func (s *Store) GetDocument(_ context.Context, collection, id string) (catalog.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return catalog.Raw{}, catalog.ErrNotFound
	}
	return doc, nil
}

func (s *Store) ListDocuments(_ context.Context, collection string) ([]catalog.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]catalog.Raw, 0, len(s.docs[collection]))
	for _, doc := range s.docs[collection] {
		res = append(res, doc)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) DeleteDocument(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.docs[collection], id)
	return nil
}

var (
	_ ledger.Store     = (*Store)(nil)
	_ attendance.Store = (*Store)(nil)
	_ directory.Store  = (*Store)(nil)
	_ catalog.Store    = (*Store)(nil)
)
