// Package toast sends feedback notifications as browser CustomEvents.
//
// A toast is a Dispatch of the "datastar:toast" event on window, so the
// page decides how to present it:
//
//	window.addEventListener("datastar:toast", (e) => {
//	    const { level, message, title } = e.detail;
//	    showToast(level, title, message);
//	});
//
// Handlers call it with their Responder:
//
//	if err := toast.Success(res, "Changes saved"); err != nil {
//	    return err
//	}
//
// Toasts are fire-and-forget. Use the redirect flash for messages that must
// survive a page navigation.
package toast
