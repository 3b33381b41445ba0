package ast

// Module is the root of a parsed file: an ordered sequence of items.
type Module struct {
	Items []Item
	Span  Span
}

// Item is a top-level declaration.
type Item interface {
	itemNode()
	ItemSpan() Span
}

// Param is a function parameter with an optional type annotation.
type Param struct {
	Name string
	Type TypeExpr // nil if unannotated
	Span Span
}

// Let is a top-level `let name = value;` item.
type Let struct {
	Name  string
	Mut   bool
	Type  TypeExpr // nil if unannotated
	Value Expr
	Span  Span
}

func (*Let) itemNode()        {}
func (l *Let) ItemSpan() Span { return l.Span }

// Fn is a function declaration with a body.
type Fn struct {
	Name       string
	TypeParams []string
	Params     []Param
	RetType    TypeExpr // nil if unannotated
	Effects    *EffectSet
	Body       *Block
	Span       Span
}

func (*Fn) itemNode()        {}
func (f *Fn) ItemSpan() Span { return f.Span }

// ExternFn declares a host function signature without a body.
type ExternFn struct {
	Name       string
	TypeParams []string
	Params     []Param
	RetType    TypeExpr
	Effects    *EffectSet
	Span       Span
}

func (*ExternFn) itemNode()        {}
func (e *ExternFn) ItemSpan() Span { return e.Span }

// FieldDecl is a struct field.
type FieldDecl struct {
	Name string
	Type TypeExpr
	Span Span
}

// Struct declares a struct ADT.
type Struct struct {
	Name       string
	TypeParams []string
	Fields     []FieldDecl
	Span       Span
}

func (*Struct) itemNode()        {}
func (s *Struct) ItemSpan() Span { return s.Span }

// VariantDecl is one enum variant: unit, or tuple with positional field types.
type VariantDecl struct {
	Name   string
	Fields []TypeExpr // nil/empty for a unit variant
	Span   Span
}

// Enum declares an enum ADT.
type Enum struct {
	Name       string
	TypeParams []string
	Variants   []VariantDecl
	Span       Span
}

func (*Enum) itemNode()        {}
func (e *Enum) ItemSpan() Span { return e.Span }

// EffectSet is an explicitly declared, concrete set of effect names, e.g. `& {Fs, Net}`.
type EffectSet struct {
	Names []string
	Span  Span
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Stmt is a statement within a Block.
type Stmt interface {
	stmtNode()
	StmtSpan() Span
}

// LetStmt is a local binding, optionally mutable, optionally pattern-destructured.
type LetStmt struct {
	Mut   bool
	Pat   Pat
	Type  TypeExpr
	Value Expr
	Span  Span
}

func (*LetStmt) stmtNode()        {}
func (s *LetStmt) StmtSpan() Span { return s.Span }

// AssignStmt assigns to an existing mutable variable.
type AssignStmt struct {
	Target *VarExpr
	Value  Expr
	Span   Span
}

func (*AssignStmt) stmtNode()        {}
func (s *AssignStmt) StmtSpan() Span { return s.Span }

// ExprStmt is an expression evaluated for effect; its value is discarded.
type ExprStmt struct {
	Expr Expr
	Span Span
}

func (*ExprStmt) stmtNode()        {}
func (s *ExprStmt) StmtSpan() Span { return s.Span }

// ReturnStmt returns from the enclosing function, optionally with a value.
type ReturnStmt struct {
	Value Expr // nil for bare `return;`
	Span  Span
}

func (*ReturnStmt) stmtNode()        {}
func (s *ReturnStmt) StmtSpan() Span { return s.Span }

// Block is an ordered statement sequence plus an optional tail expression.
// The value of a block is the tail expression's value, or unit if absent.
type Block struct {
	Stmts []Stmt
	Tail  Expr // nil if absent
	Span  Span
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Expr is an expression node.
type Expr interface {
	exprNode()
	ExprSpan() Span
}

// LitKind tags the kind of literal value carried by LitExpr and LitPat.
type LitKind int

const (
	LitInt LitKind = iota
	LitFloat
	LitString
	LitBool
	LitNil
)

// LitExpr is a literal value.
type LitExpr struct {
	Kind   LitKind
	Int    int64
	Float  float64
	String string
	Bool   bool
	Span   Span
}

func (*LitExpr) exprNode()         {}
func (e *LitExpr) ExprSpan() Span  { return e.Span }

// VarExpr references a bound identifier.
type VarExpr struct {
	Name string
	Span Span
}

func (*VarExpr) exprNode()        {}
func (e *VarExpr) ExprSpan() Span { return e.Span }

// PathExpr references a qualified name, e.g. `Color::Red` used as a value.
type PathExpr struct {
	Segments []string
	Span     Span
}

func (*PathExpr) exprNode()        {}
func (e *PathExpr) ExprSpan() Span { return e.Span }

// ParenExpr is a parenthesized expression.
type ParenExpr struct {
	Inner Expr
	Span  Span
}

func (*ParenExpr) exprNode()        {}
func (e *ParenExpr) ExprSpan() Span { return e.Span }

// BorrowExpr is `&expr`: identity at runtime, non-consuming in the move checker.
type BorrowExpr struct {
	Inner Expr
	Span  Span
}

func (*BorrowExpr) exprNode()        {}
func (e *BorrowExpr) ExprSpan() Span { return e.Span }

// UnOp is a prefix unary operator.
type UnOp int

const (
	UnNot UnOp = iota
	UnNeg
)

// UnaryExpr applies a prefix unary operator.
type UnaryExpr struct {
	Op      UnOp
	Operand Expr
	Span    Span
}

func (*UnaryExpr) exprNode()        {}
func (e *UnaryExpr) ExprSpan() Span { return e.Span }

// BinOp is an infix binary operator.
type BinOp int

const (
	BinOr BinOp = iota
	BinAnd
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAdd
	BinSub
	BinMul
	BinDiv
)

// BinaryExpr applies an infix binary operator.
type BinaryExpr struct {
	Op   BinOp
	Lhs  Expr
	Rhs  Expr
	Span Span
}

func (*BinaryExpr) exprNode()        {}
func (e *BinaryExpr) ExprSpan() Span { return e.Span }

// CallExpr applies a callee to a list of arguments.
type CallExpr struct {
	Callee Expr
	Args   []Expr
	Span   Span
}

func (*CallExpr) exprNode()        {}
func (e *CallExpr) ExprSpan() Span { return e.Span }

// BlockExpr wraps a Block so it can appear in expression position.
type BlockExpr struct {
	Block *Block
	Span  Span
}

func (*BlockExpr) exprNode()        {}
func (e *BlockExpr) ExprSpan() Span { return e.Span }

// IfExpr is `if cond { then } [else { else_ }]`. `else if` is represented as
// Else holding a nested *IfExpr wrapped in no extra node (Else is an Expr,
// either a *BlockExpr or an *IfExpr).
type IfExpr struct {
	Cond Expr
	Then *Block
	Else Expr // nil, *BlockExpr, or *IfExpr
	Span Span
}

func (*IfExpr) exprNode()        {}
func (e *IfExpr) ExprSpan() Span { return e.Span }

// WhileExpr is a while loop; its value is always unit.
type WhileExpr struct {
	Cond Expr
	Body *Block
	Span Span
}

func (*WhileExpr) exprNode()        {}
func (e *WhileExpr) ExprSpan() Span { return e.Span }

// MatchArm is one `pattern => body` arm of a match expression.
type MatchArm struct {
	Pat  Pat
	Body Expr
	Span Span
}

// MatchExpr matches a scrutinee against an ordered list of arms.
type MatchExpr struct {
	Scrutinee Expr
	Arms      []MatchArm
	Span      Span
}

func (*MatchExpr) exprNode()        {}
func (e *MatchExpr) ExprSpan() Span { return e.Span }

// TupleExpr is a tuple literal. Zero elements desugars to unit at the type
// level; one element is not a tuple (parser never produces a 1-tuple).
type TupleExpr struct {
	Elems []Expr
	Span  Span
}

func (*TupleExpr) exprNode()        {}
func (e *TupleExpr) ExprSpan() Span { return e.Span }

// FieldInit is one `name: expr` entry of a struct expression.
type FieldInit struct {
	Name  string
	Value Expr
	Span  Span
}

// StructExpr constructs a struct or enum-tuple value via a qualified path.
type StructExpr struct {
	Path   []string
	Fields []FieldInit
	Span   Span
}

func (*StructExpr) exprNode()        {}
func (e *StructExpr) ExprSpan() Span { return e.Span }

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

// Pat is a pattern used in `let`, function parameters (future), and match arms.
type Pat interface {
	patNode()
	PatSpan() Span
}

// WildcardPat is `_`.
type WildcardPat struct{ Span Span }

func (*WildcardPat) patNode()        {}
func (p *WildcardPat) PatSpan() Span { return p.Span }

// IdentPat binds the matched value to a name.
type IdentPat struct {
	Name string
	Span Span
}

func (*IdentPat) patNode()        {}
func (p *IdentPat) PatSpan() Span { return p.Span }

// LitPat matches a literal value.
type LitPat struct {
	Kind   LitKind
	Int    int64
	Float  float64
	String string
	Bool   bool
	Span   Span
}

func (*LitPat) patNode()        {}
func (p *LitPat) PatSpan() Span { return p.Span }

// TuplePat destructures a tuple.
type TuplePat struct {
	Elems []Pat
	Span  Span
}

func (*TuplePat) patNode()        {}
func (p *TuplePat) PatSpan() Span { return p.Span }

// VariantPat matches an enum variant by qualified path with sub-patterns.
type VariantPat struct {
	Path []string
	Sub  []Pat
	Span Span
}

func (*VariantPat) patNode()        {}
func (p *VariantPat) PatSpan() Span { return p.Span }

// FieldPat is one `name: pat` entry of a struct pattern.
type FieldPat struct {
	Name string
	Pat  Pat
	Span Span
}

// StructPat matches a struct by qualified path with named sub-patterns.
type StructPat struct {
	Path   []string
	Fields []FieldPat
	Span   Span
}

func (*StructPat) patNode()        {}
func (p *StructPat) PatSpan() Span { return p.Span }

// ---------------------------------------------------------------------------
// Type expressions
// ---------------------------------------------------------------------------

// TypeExpr is a syntactic type annotation.
type TypeExpr interface {
	typeExprNode()
	TypeSpan() Span
}

// PathType is a (possibly namespaced) type name, e.g. `Int` or `Color`.
type PathType struct {
	Segments []string
	Span     Span
}

func (*PathType) typeExprNode()     {}
func (t *PathType) TypeSpan() Span { return t.Span }

// GenericType is a generic application, e.g. `List<Int>`.
type GenericType struct {
	Segments []string
	Args     []TypeExpr
	Span     Span
}

func (*GenericType) typeExprNode()    {}
func (t *GenericType) TypeSpan() Span { return t.Span }

// TupleType is a tuple type `(A, B, ...)`.
type TupleType struct {
	Elems []TypeExpr
	Span  Span
}

func (*TupleType) typeExprNode()    {}
func (t *TupleType) TypeSpan() Span { return t.Span }

// ArrowType is a function type with an optional explicit effect suffix.
type ArrowType struct {
	Params  []TypeExpr
	Ret     TypeExpr
	Effects *EffectSet
	Span    Span
}

func (*ArrowType) typeExprNode()    {}
func (t *ArrowType) TypeSpan() Span { return t.Span }

// RefType is a borrow type `&T`.
type RefType struct {
	Inner TypeExpr
	Span  Span
}

func (*RefType) typeExprNode()    {}
func (t *RefType) TypeSpan() Span { return t.Span }
