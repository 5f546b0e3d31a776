package parser

import "github.com/leapstack-labs/dbtlineage/pkg/token"

// Node is implemented by every AST node.
type Node interface {
	Span() token.Span
}

// Expr is a scalar expression.
type Expr interface {
	Node
	exprNode()
}

// TableRef is an item in a FROM clause.
type TableRef interface {
	Node
	tableRefNode()
}

// QueryBody is the body of a query: a SELECT, a set operation, a VALUES
// list, or a parenthesized *Query.
type QueryBody interface {
	Node
	queryBodyNode()
}

// spanned carries the source span of a node.
type spanned struct {
	Loc token.Span
}

// Span returns the node's source span.
func (s spanned) Span() token.Span { return s.Loc }

// ---------- Query structure ----------

// Query is a full query expression: optional WITH, a body, and the trailing
// ORDER BY / LIMIT / OFFSET that apply to the whole body.
type Query struct {
	spanned
	With    *WithClause
	Body    QueryBody
	OrderBy []*OrderItem
	Limit   Expr
	Offset  Expr
}

// WithClause holds the common table expressions of a query.
type WithClause struct {
	spanned
	Recursive bool
	CTEs      []*CTE
}

// CTE is one named common table expression.
type CTE struct {
	spanned
	Name    string
	Columns []string
	Query   *Query
}

// Select is a single SELECT block.
type Select struct {
	spanned
	Distinct   bool
	DistinctOn []Expr
	Top        Expr
	Columns    []*SelectItem
	From       TableRef // nil when there is no FROM clause
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	Windows    []*NamedWindow
	Qualify    Expr
}

// SetOperation combines two query bodies with UNION, INTERSECT, EXCEPT or
// MINUS.
type SetOperation struct {
	spanned
	Op     token.TokenType // UNION, INTERSECT, EXCEPT (MINUS is folded into EXCEPT)
	All    bool
	ByName bool
	Left   QueryBody
	Right  QueryBody
}

// Values is a VALUES row list used as a query body.
type Values struct {
	spanned
	Rows [][]Expr
}

// SelectItem is one entry of a SELECT list.
//
// A star item has Star set and an optional Qualifier (t.* or schema.t.*),
// plus the EXCLUDE / REPLACE / RENAME modifiers.
type SelectItem struct {
	spanned
	Star      bool
	Qualifier []string
	Exclude   []string
	Replace   []*ReplaceItem
	Rename    []*RenameItem

	Expr  Expr
	Alias string
}

// ReplaceItem is one `expr AS name` entry of a star REPLACE modifier.
type ReplaceItem struct {
	spanned
	Expr Expr
	Name string
}

// RenameItem is one `old AS new` entry of a star RENAME modifier.
type RenameItem struct {
	spanned
	From string
	To   string
}

// NamedWindow is an entry of a WINDOW clause.
type NamedWindow struct {
	spanned
	Name string
	Spec *WindowSpec
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	spanned
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

func (*Query) queryBodyNode()        {}
func (*Select) queryBodyNode()       {}
func (*SetOperation) queryBodyNode() {}
func (*Values) queryBodyNode()       {}

// ---------- FROM items ----------

// TableName references a relation by (possibly qualified) name.
type TableName struct {
	spanned
	Parts         []string
	Alias         string
	ColumnAliases []string
}

// Name returns the last part of the table name.
func (t *TableName) Name() string {
	if len(t.Parts) == 0 {
		return ""
	}
	return t.Parts[len(t.Parts)-1]
}

// DerivedTable is a parenthesized subquery in FROM.
type DerivedTable struct {
	spanned
	Query         *Query
	Alias         string
	ColumnAliases []string
	Lateral       bool
}

// TableFunction is a function call used as a relation, e.g. UNNEST(x) or
// generate_series(1, 10).
type TableFunction struct {
	spanned
	Func          *FuncCall
	Alias         string
	ColumnAliases []string
	Lateral       bool
}

// Join is a binary join of two FROM items. Comma-separated FROM items are
// represented as CROSS joins with Implicit set.
type Join struct {
	spanned
	Type     token.TokenType // INNER, LEFT, RIGHT, FULL or CROSS
	Natural  bool
	Implicit bool
	Left     TableRef
	Right    TableRef
	On       Expr
	Using    []string
}

// ParenTable is a parenthesized join tree.
type ParenTable struct {
	spanned
	Table TableRef
	Alias string
}

func (*TableName) tableRefNode()     {}
func (*DerivedTable) tableRefNode()  {}
func (*TableFunction) tableRefNode() {}
func (*Join) tableRefNode()          {}
func (*ParenTable) tableRefNode()    {}

// ---------- Expressions ----------

// ColumnRef is a possibly qualified column reference (col, t.col, s.t.col).
type ColumnRef struct {
	spanned
	Parts []string
}

// Column returns the last part of the reference.
func (c *ColumnRef) Column() string {
	return c.Parts[len(c.Parts)-1]
}

// Table returns the part immediately before the column, or "" when the
// reference is unqualified.
func (c *ColumnRef) Table() string {
	if len(c.Parts) < 2 {
		return ""
	}
	return c.Parts[len(c.Parts)-2]
}

// LiteralKind classifies literals.
type LiteralKind int

// Literal kinds.
const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralNull
	LiteralParam
)

// Literal is a constant value.
type Literal struct {
	spanned
	Kind  LiteralKind
	Value string
}

// TypedLiteral is a literal with a type prefix: DATE '2024-01-01'.
type TypedLiteral struct {
	spanned
	Type  string
	Value string
}

// IntervalExpr is INTERVAL <value> [unit].
type IntervalExpr struct {
	spanned
	Value Expr
	Unit  string
}

// BinaryExpr is a binary operator application. Op is the operator text in
// upper case for keywords (AND, OR) and as written otherwise.
type BinaryExpr struct {
	spanned
	Left  Expr
	Op    string
	Right Expr
}

// UnaryExpr is a prefix operator application (-x, NOT x, ~x).
type UnaryExpr struct {
	spanned
	Op   string
	Expr Expr
}

// FuncCall is a function call, optionally aggregate or windowed.
type FuncCall struct {
	spanned
	Name          []string
	Args          []Expr
	Distinct      bool
	Star          bool // COUNT(*)
	OrderBy       []*OrderItem
	Filter        Expr
	WithinGroup   []*OrderItem
	NullTreatment string // IGNORE NULLS / RESPECT NULLS
	Over          *WindowSpec
}

// FuncName returns the last part of the function name.
func (f *FuncCall) FuncName() string {
	return f.Name[len(f.Name)-1]
}

// NamedArg is a `name => value` function argument.
type NamedArg struct {
	spanned
	Name  string
	Value Expr
}

// StarExpr is a bare * appearing as an expression argument.
type StarExpr struct {
	spanned
	Qualifier []string
}

// WindowSpec is an OVER clause or a WINDOW definition.
type WindowSpec struct {
	spanned
	Name        string // reference to a named window
	PartitionBy []Expr
	OrderBy     []*OrderItem
	Frame       *FrameSpec
}

// FrameSpec is a window frame clause.
type FrameSpec struct {
	spanned
	Unit  string // ROWS, RANGE or GROUPS
	Start *FrameBound
	End   *FrameBound
}

// FrameBound is one end of a window frame.
type FrameBound struct {
	spanned
	Kind   string // UNBOUNDED PRECEDING, PRECEDING, CURRENT ROW, FOLLOWING, UNBOUNDED FOLLOWING
	Offset Expr
}

// CaseExpr is CASE [operand] WHEN ... THEN ... [ELSE ...] END.
type CaseExpr struct {
	spanned
	Operand Expr
	Whens   []*WhenClause
	Else    Expr
}

// WhenClause is one WHEN/THEN branch.
type WhenClause struct {
	spanned
	Condition Expr
	Result    Expr
}

// CastExpr is CAST(expr AS type), TRY_CAST, SAFE_CAST or expr::type.
type CastExpr struct {
	spanned
	Expr Expr
	Type string
	Kind string // CAST, TRY_CAST, SAFE_CAST or ::
}

// InExpr is expr [NOT] IN (list) or expr [NOT] IN (subquery).
type InExpr struct {
	spanned
	Expr  Expr
	Not   bool
	List  []Expr
	Query *Query
}

// BetweenExpr is expr [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	spanned
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

// LikeExpr is expr [NOT] LIKE/ILIKE pattern [ESCAPE esc].
type LikeExpr struct {
	spanned
	Expr    Expr
	Not     bool
	Op      string
	Pattern Expr
	Escape  Expr
}

// IsExpr is expr IS [NOT] NULL/TRUE/FALSE or IS [NOT] DISTINCT FROM expr.
type IsExpr struct {
	spanned
	Expr      Expr
	Not       bool
	Predicate string // NULL, TRUE, FALSE or DISTINCT FROM
	Right     Expr
}

// ExistsExpr is [NOT] EXISTS (subquery).
type ExistsExpr struct {
	spanned
	Not   bool
	Query *Query
}

// SubqueryExpr is a scalar subquery, optionally with ANY/ALL/SOME.
type SubqueryExpr struct {
	spanned
	Query      *Query
	Quantifier string
}

// ParenExpr is a parenthesized expression.
type ParenExpr struct {
	spanned
	Expr Expr
}

// TupleExpr is a parenthesized expression list (a, b).
type TupleExpr struct {
	spanned
	Items []Expr
}

// ArrayExpr is ARRAY[...] or [...].
type ArrayExpr struct {
	spanned
	Items []Expr
}

// StructExpr is a {'k': v} struct literal.
type StructExpr struct {
	spanned
	Keys   []string
	Values []Expr
}

// IndexExpr is expr[index] or expr[lo:hi].
type IndexExpr struct {
	spanned
	Expr  Expr
	Index Expr
	Upper Expr
	Slice bool
}

// FieldAccess is a semi-structured path access: col:field, col->'k',
// col->>'k', or (expr).field.
type FieldAccess struct {
	spanned
	Expr  Expr
	Op    string
	Field Expr
}

// ExtractExpr is EXTRACT(part FROM expr).
type ExtractExpr struct {
	spanned
	Part string
	Expr Expr
}

// LambdaExpr is x -> expr inside function arguments.
type LambdaExpr struct {
	spanned
	Params []string
	Body   Expr
}

func (*ColumnRef) exprNode()    {}
func (*Literal) exprNode()      {}
func (*TypedLiteral) exprNode() {}
func (*IntervalExpr) exprNode() {}
func (*BinaryExpr) exprNode()   {}
func (*UnaryExpr) exprNode()    {}
func (*FuncCall) exprNode()     {}
func (*NamedArg) exprNode()     {}
func (*StarExpr) exprNode()     {}
func (*CaseExpr) exprNode()     {}
func (*CastExpr) exprNode()     {}
func (*InExpr) exprNode()       {}
func (*BetweenExpr) exprNode()  {}
func (*LikeExpr) exprNode()     {}
func (*IsExpr) exprNode()       {}
func (*ExistsExpr) exprNode()   {}
func (*SubqueryExpr) exprNode() {}
func (*ParenExpr) exprNode()    {}
func (*TupleExpr) exprNode()    {}
func (*ArrayExpr) exprNode()    {}
func (*StructExpr) exprNode()   {}
func (*IndexExpr) exprNode()    {}
func (*FieldAccess) exprNode()  {}
func (*ExtractExpr) exprNode()  {}
func (*LambdaExpr) exprNode()   {}
