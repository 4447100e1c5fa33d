package render

// Rect 表示矩形区域。
type Rect struct {
	X, Y          int
	Width, Height int
}

// CursorPos 代表光标位置。
type CursorPos struct {
	X, Y int
}

// Renderable 是可以按区域绘制到 Buffer 的组件。
type Renderable interface {
	DesiredHeight(width int) int
	CursorPos(area Rect) *CursorPos
	Render(area Rect, buf *Buffer)
}
