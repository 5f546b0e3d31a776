package parser

// Inspect traverses the tree rooted at node in depth-first source order,
// calling fn for each node. If fn returns false the children of that node
// are skipped. Nil nodes are never passed to fn.
func Inspect(node Node, fn func(Node) bool) {
	if isNil(node) || !fn(node) {
		return
	}

	switch n := node.(type) {
	case *Query:
		if n.With != nil {
			Inspect(n.With, fn)
		}
		Inspect(n.Body, fn)
		inspectOrder(n.OrderBy, fn)
		inspectExpr(n.Limit, fn)
		inspectExpr(n.Offset, fn)
	case *WithClause:
		for _, c := range n.CTEs {
			Inspect(c, fn)
		}
	case *CTE:
		if n.Query != nil {
			Inspect(n.Query, fn)
		}
	case *Select:
		inspectExprs(n.DistinctOn, fn)
		inspectExpr(n.Top, fn)
		for _, item := range n.Columns {
			Inspect(item, fn)
		}
		if n.From != nil {
			Inspect(n.From, fn)
		}
		inspectExpr(n.Where, fn)
		inspectExprs(n.GroupBy, fn)
		inspectExpr(n.Having, fn)
		for _, w := range n.Windows {
			Inspect(w, fn)
		}
		inspectExpr(n.Qualify, fn)
	case *SetOperation:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
	case *Values:
		for _, row := range n.Rows {
			inspectExprs(row, fn)
		}
	case *SelectItem:
		for _, r := range n.Replace {
			Inspect(r, fn)
		}
		for _, r := range n.Rename {
			Inspect(r, fn)
		}
		inspectExpr(n.Expr, fn)
	case *ReplaceItem:
		inspectExpr(n.Expr, fn)
	case *NamedWindow:
		if n.Spec != nil {
			Inspect(n.Spec, fn)
		}
	case *OrderItem:
		inspectExpr(n.Expr, fn)

	case *DerivedTable:
		if n.Query != nil {
			Inspect(n.Query, fn)
		}
	case *TableFunction:
		if n.Func != nil {
			Inspect(n.Func, fn)
		}
	case *Join:
		Inspect(n.Left, fn)
		Inspect(n.Right, fn)
		inspectExpr(n.On, fn)
	case *ParenTable:
		Inspect(n.Table, fn)

	case *IntervalExpr:
		inspectExpr(n.Value, fn)
	case *BinaryExpr:
		inspectExpr(n.Left, fn)
		inspectExpr(n.Right, fn)
	case *UnaryExpr:
		inspectExpr(n.Expr, fn)
	case *FuncCall:
		inspectExprs(n.Args, fn)
		inspectOrder(n.OrderBy, fn)
		inspectExpr(n.Filter, fn)
		inspectOrder(n.WithinGroup, fn)
		if n.Over != nil {
			Inspect(n.Over, fn)
		}
	case *NamedArg:
		inspectExpr(n.Value, fn)
	case *WindowSpec:
		inspectExprs(n.PartitionBy, fn)
		inspectOrder(n.OrderBy, fn)
		if n.Frame != nil {
			Inspect(n.Frame, fn)
		}
	case *FrameSpec:
		if n.Start != nil {
			Inspect(n.Start, fn)
		}
		if n.End != nil {
			Inspect(n.End, fn)
		}
	case *FrameBound:
		inspectExpr(n.Offset, fn)
	case *CaseExpr:
		inspectExpr(n.Operand, fn)
		for _, w := range n.Whens {
			Inspect(w, fn)
		}
		inspectExpr(n.Else, fn)
	case *WhenClause:
		inspectExpr(n.Condition, fn)
		inspectExpr(n.Result, fn)
	case *CastExpr:
		inspectExpr(n.Expr, fn)
	case *InExpr:
		inspectExpr(n.Expr, fn)
		inspectExprs(n.List, fn)
		if n.Query != nil {
			Inspect(n.Query, fn)
		}
	case *BetweenExpr:
		inspectExpr(n.Expr, fn)
		inspectExpr(n.Low, fn)
		inspectExpr(n.High, fn)
	case *LikeExpr:
		inspectExpr(n.Expr, fn)
		inspectExpr(n.Pattern, fn)
		inspectExpr(n.Escape, fn)
	case *IsExpr:
		inspectExpr(n.Expr, fn)
		inspectExpr(n.Right, fn)
	case *ExistsExpr:
		if n.Query != nil {
			Inspect(n.Query, fn)
		}
	case *SubqueryExpr:
		if n.Query != nil {
			Inspect(n.Query, fn)
		}
	case *ParenExpr:
		inspectExpr(n.Expr, fn)
	case *TupleExpr:
		inspectExprs(n.Items, fn)
	case *ArrayExpr:
		inspectExprs(n.Items, fn)
	case *StructExpr:
		inspectExprs(n.Values, fn)
	case *IndexExpr:
		inspectExpr(n.Expr, fn)
		inspectExpr(n.Index, fn)
		inspectExpr(n.Upper, fn)
	case *FieldAccess:
		inspectExpr(n.Expr, fn)
		inspectExpr(n.Field, fn)
	case *ExtractExpr:
		inspectExpr(n.Expr, fn)
	case *LambdaExpr:
		inspectExpr(n.Body, fn)
	}
}

func inspectExpr(e Expr, fn func(Node) bool) {
	if e != nil {
		Inspect(e, fn)
	}
}

func inspectExprs(exprs []Expr, fn func(Node) bool) {
	for _, e := range exprs {
		inspectExpr(e, fn)
	}
}

func inspectOrder(items []*OrderItem, fn func(Node) bool) {
	for _, o := range items {
		Inspect(o, fn)
	}
}

// isNil reports whether n is nil or a typed nil pointer.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch v := n.(type) {
	case *Query:
		return v == nil
	case *Select:
		return v == nil
	case *WindowSpec:
		return v == nil
	case *FuncCall:
		return v == nil
	}
	return false
}
